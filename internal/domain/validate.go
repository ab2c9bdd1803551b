package domain

import (
	"errors"
	"math"
	"time"

	"github.com/pbaille/fieldmap/internal/bbox"
)

// Validation messages reported back per batch item
const (
	MsgInvalidProcess = "Invalid process id"
	MsgInvalidPage    = "Invalid page"
	MsgFieldName      = "field_name required"
	MsgNormShape      = "bbox_norm must be 4 numbers"
	MsgNormRange      = "bbox_norm values must be between 0 and 1"
	MsgNormOrder      = "bbox_norm x2> x1 and y2 > y1 required"
	MsgPixelShape     = "bbox_pixel must be 4 numbers"
	MsgBBoxRequired   = "Either bbox_norm or bbox_pixel is required"
)

// ProcessLookup resolves process ids
type ProcessLookup interface {
	HasProcess(id string) bool
}

// Validate checks a candidate against the processes known to the store.
// It returns nil or a *ValidationError.
func Validate(c Candidate, procs ProcessLookup) error {
	if c.Process == "" || !procs.HasProcess(c.Process) {
		return invalid(MsgInvalidProcess)
	}
	if c.Page == nil || *c.Page < 1 || *c.Page > math.MaxInt32 || *c.Page != math.Trunc(*c.Page) {
		return invalid(MsgInvalidPage)
	}
	if c.FieldName == "" {
		return invalid(MsgFieldName)
	}

	switch {
	case c.BBoxNorm != nil:
		if _, err := bbox.ParseNormalized(c.BBoxNorm); err != nil {
			return invalid(normMessage(err))
		}
	case c.BBoxPixel != nil:
		if _, err := bbox.ParsePixel(c.BBoxPixel); err != nil {
			return invalid(MsgPixelShape)
		}
	default:
		return invalid(MsgBBoxRequired)
	}
	return nil
}

func normMessage(err error) string {
	switch {
	case errors.Is(err, bbox.ErrOutOfRange):
		return MsgNormRange
	case errors.Is(err, bbox.ErrNotOrdered):
		return MsgNormOrder
	default:
		return MsgNormShape
	}
}

// NewAnnotation builds the record persisted for a validated candidate,
// filling every optional field with its default. The ID and CreatedAt are
// left to the store.
func NewAnnotation(c Candidate) Annotation {
	a := Annotation{
		Process:     c.Process,
		FormID:      c.FormID,
		FieldID:     c.FieldID,
		FieldName:   c.FieldName,
		FieldHeader: c.FieldHeader,
		Scale:       c.Scale,
		FieldType:   c.FieldType,
		Metadata:    c.Metadata,
	}
	if c.Page != nil {
		a.Page = int(*c.Page)
	}
	if a.Scale == 0 {
		a.Scale = 1
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	if r, err := bbox.ParseNormalized(c.BBoxNorm); err == nil {
		a.BBoxNorm = &r
	}
	// a malformed pixel box next to a valid normalized one is dropped
	if r, err := bbox.ParsePixel(c.BBoxPixel); err == nil {
		a.BBoxPixel = &r
	}
	return a
}

// Stamp returns a copy of a with store-assigned identity
func (a Annotation) Stamp(id string, at time.Time) Annotation {
	a.ID = id
	a.CreatedAt = &at
	return a
}
