package domain

import (
	"time"

	"github.com/pbaille/fieldmap/internal/bbox"
)

// Process represents one uploaded document
type Process struct {
	ID           string     `json:"id"`
	OriginalName string     `json:"originalName"`
	Filename     string     `json:"filename"`
	Path         string     `json:"path"`
	PageCount    int        `json:"page_count,omitempty"`
	Pages        []PageSize `json:"pages,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// PageSize is the unscaled size of one page, in PDF points
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Frame returns the render frame of page n (1-based) at the given scale.
// It reports false when the page size is unknown.
func (p *Process) Frame(page int, scale float64) (bbox.Frame, bool) {
	if page < 1 || page > len(p.Pages) {
		return bbox.Frame{}, false
	}
	size := p.Pages[page-1]
	return bbox.Frame{Width: size.Width, Height: size.Height}.Scaled(scale), true
}

// Annotation is one labeled region on one page of a process.
// A draft has no ID and no CreatedAt.
type Annotation struct {
	ID          string         `json:"id,omitempty"`
	Process     string         `json:"process"`
	FormID      *string        `json:"form_id"`
	FieldID     *string        `json:"field_id"`
	FieldName   string         `json:"field_name"`
	FieldHeader string         `json:"field_header"`
	BBoxPixel   *bbox.Rect     `json:"bbox_pixel"`
	BBoxNorm    *bbox.Rect     `json:"bbox_norm"`
	Page        int            `json:"page"`
	Scale       float64        `json:"scale"`
	FieldType   string         `json:"field_type"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   *time.Time     `json:"createdAt,omitempty"`
}

// IsDraft reports whether the annotation has not been persisted yet
func (a Annotation) IsDraft() bool {
	return a.ID == ""
}

// Region returns the box the annotation should be read through
func (a Annotation) Region() (bbox.Region, bool) {
	return bbox.Primary(a.BBoxNorm, a.BBoxPixel)
}

// FormMatches reports whether the annotation belongs to formID.
// A nil formID matches everything.
func (a Annotation) FormMatches(formID *string) bool {
	if formID == nil {
		return true
	}
	return a.FormID != nil && *a.FormID == *formID
}
