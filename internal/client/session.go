package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pbaille/fieldmap/internal/bbox"
	"github.com/pbaille/fieldmap/internal/domain"
	"github.com/pbaille/fieldmap/internal/ingest"
	"github.com/pbaille/fieldmap/internal/reconcile"
)

// DefaultFieldType is the field type given to newly drawn boxes
const DefaultFieldType = "CharField"

var (
	// ErrNothingToSave is returned by Save when no draft is pending
	ErrNothingToSave = errors.New("no annotations to save")
	// ErrPersisted is returned by Update for entries already saved
	ErrPersisted = errors.New("annotation already saved")
)

// Session holds the annotations of one document as the user edits them:
// persisted records loaded from the server plus local drafts.
type Session struct {
	client  *Client
	process domain.Process
	formID  *string
	anns    []domain.Annotation
	now     func() time.Time
}

// NewSession starts an empty session for process. New drafts get formID.
func NewSession(c *Client, process domain.Process, formID *string) *Session {
	return &Session{client: c, process: process, formID: formID, now: time.Now}
}

// Annotations returns a copy of the current list
func (s *Session) Annotations() []domain.Annotation {
	out := make([]domain.Annotation, len(s.anns))
	copy(out, s.anns)
	return out
}

// Drafts counts the entries not yet persisted
func (s *Session) Drafts() int {
	n := 0
	for _, a := range s.anns {
		if a.IsDraft() {
			n++
		}
	}
	return n
}

// Load replaces the list with the records stored on the server
func (s *Session) Load(ctx context.Context) error {
	anns, err := s.client.Annotations(ctx, s.process.ID)
	if err != nil {
		return fmt.Errorf("load annotations: %w", err)
	}
	s.anns = anns
	return nil
}

// Draw turns a finished drag on page into a draft. frame is the size of the
// rendered page and scale the render scale it was drawn at. Drags smaller
// than bbox.MinDragSize in either axis are discarded and Draw reports false.
func (s *Session) Draw(page int, start, end bbox.Point, frame bbox.Frame, scale float64) (domain.Annotation, bool) {
	pixel, ok := bbox.FromDrag(start, end)
	if !ok {
		return domain.Annotation{}, false
	}
	norm := bbox.ToNormalized(pixel, frame)

	ann := domain.Annotation{
		Process:   s.process.ID,
		FormID:    s.formID,
		FieldName: "field_" + strconv.FormatInt(s.now().UnixMilli(), 10),
		BBoxPixel: &pixel,
		BBoxNorm:  &norm,
		Page:      page,
		Scale:     scale,
		FieldType: DefaultFieldType,
		Metadata:  map[string]any{"required": false},
	}
	s.anns = append(s.anns, ann)
	return ann, true
}

// Patch lists the edits Update may apply; nil fields are left alone
type Patch struct {
	FieldName   *string
	FieldHeader *string
	FieldType   *string
	FormID      *string
	Required    *bool
}

// Update edits the draft at index i. Saved entries are read-only.
func (s *Session) Update(i int, p Patch) error {
	if i < 0 || i >= len(s.anns) {
		return fmt.Errorf("no annotation at index %d", i)
	}
	a := &s.anns[i]
	if !a.IsDraft() {
		return fmt.Errorf("update %s: %w", a.ID, ErrPersisted)
	}
	if p.FieldName != nil {
		a.FieldName = *p.FieldName
	}
	if p.FieldHeader != nil {
		a.FieldHeader = *p.FieldHeader
	}
	if p.FieldType != nil {
		a.FieldType = *p.FieldType
	}
	if p.FormID != nil {
		formID := *p.FormID
		a.FormID = &formID
	}
	if p.Required != nil {
		md := make(map[string]any, len(a.Metadata)+1)
		for k, v := range a.Metadata {
			md[k] = v
		}
		md["required"] = *p.Required
		a.Metadata = md
	}
	return nil
}

// Save sends every pending draft in one batch and merges the confirmed
// records back. Drafts the server rejected stay in the list unsaved.
func (s *Session) Save(ctx context.Context) (*ingest.Result, error) {
	var batch []domain.Annotation
	for _, a := range s.anns {
		if a.IsDraft() {
			batch = append(batch, a)
		}
	}
	if len(batch) == 0 {
		return nil, ErrNothingToSave
	}

	res, err := s.client.BulkSave(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("bulk save: %w", err)
	}
	s.anns, _ = reconcile.Merge(s.anns, res.Saved)
	return res, nil
}

// Clear removes the stored annotations of the process and reloads
func (s *Session) Clear(ctx context.Context) error {
	if err := s.client.Clear(ctx, s.process.ID); err != nil {
		return fmt.Errorf("clear annotations: %w", err)
	}
	return s.Load(ctx)
}
