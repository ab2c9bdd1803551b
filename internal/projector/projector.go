// Package projector derives the field definitions consumed by the external
// form/table builder from stored annotations. The projection holds no state;
// the same annotations always produce the same output.
package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/goccy/go-yaml"

	"github.com/pbaille/fieldmap/internal/bbox"
	"github.com/pbaille/fieldmap/internal/domain"
	"github.com/pbaille/fieldmap/internal/store"
)

const (
	defaultFieldType = "CharField"
	defaultTypes     = "text"
)

// Output formats accepted by Encode
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// BBox is a box as named corners. All fields are omitted when the
// annotation has no box.
type BBox struct {
	X1 *float64 `json:"x1,omitempty" yaml:"x1,omitempty"`
	Y1 *float64 `json:"y1,omitempty" yaml:"y1,omitempty"`
	X2 *float64 `json:"x2,omitempty" yaml:"x2,omitempty"`
	Y2 *float64 `json:"y2,omitempty" yaml:"y2,omitempty"`
}

// AnnotationRef is the annotation as embedded in a field definition
type AnnotationRef struct {
	BBox        BBox    `json:"bbox" yaml:"bbox"`
	Page        int     `json:"page" yaml:"page"`
	FieldID     string  `json:"field_id" yaml:"field_id"`
	FieldName   string  `json:"field_name" yaml:"field_name"`
	FieldHeader string  `json:"field_header" yaml:"field_header"`
	Process     string  `json:"process" yaml:"process"`
	FormID      *string `json:"form_id" yaml:"form_id"`
}

// FieldDefinition is one column of the generated table
type FieldDefinition struct {
	ID               string        `json:"id" yaml:"id"`
	Annotation       AnnotationRef `json:"annotation" yaml:"annotation"`
	TableName        string        `json:"table_name" yaml:"table_name"`
	FieldName        string        `json:"field_name" yaml:"field_name"`
	FieldType        string        `json:"field_type" yaml:"field_type"`
	MaxLength        float64       `json:"max_length" yaml:"max_length"`
	RelationType     string        `json:"relation_type" yaml:"relation_type"`
	RelatedTableName string        `json:"related_table_name" yaml:"related_table_name"`
	RelatedField     string        `json:"related_field" yaml:"related_field"`
	Group            int           `json:"group" yaml:"group"`
	FieldHeader      string        `json:"field_header" yaml:"field_header"`
	Placeholder      string        `json:"placeholder" yaml:"placeholder"`
	Required         bool          `json:"required" yaml:"required"`
	FieldOptions     string        `json:"field_options" yaml:"field_options"`
	Types            string        `json:"types" yaml:"types"`
	ValidationCode   *string       `json:"validation_code" yaml:"validation_code"`
	RequiredIf       *string       `json:"required_if" yaml:"required_if"`
	RegexPtn         *string       `json:"regex_ptn" yaml:"regex_ptn"`
	FormID           *string       `json:"form_id" yaml:"form_id"`
	ProcessID        string        `json:"process_id" yaml:"process_id"`
}

// TableName returns the generated table name for a process
func TableName(processID string) string {
	return "table_" + processID + "_qc"
}

// Project maps annotations to field definitions, one per annotation, in order
func Project(anns []domain.Annotation) []FieldDefinition {
	out := make([]FieldDefinition, 0, len(anns))
	for _, a := range anns {
		out = append(out, Define(a))
	}
	return out
}

// Define builds the field definition of a single annotation
func Define(a domain.Annotation) FieldDefinition {
	fieldID := a.ID
	if a.FieldID != nil && *a.FieldID != "" {
		fieldID = *a.FieldID
	}
	fieldType := a.FieldType
	if fieldType == "" {
		fieldType = defaultFieldType
	}
	types := a.FieldType
	if types == "" {
		types = defaultTypes
	}

	return FieldDefinition{
		ID: a.ID,
		Annotation: AnnotationRef{
			BBox:        boxOf(a),
			Page:        a.Page,
			FieldID:     fieldID,
			FieldName:   a.FieldName,
			FieldHeader: a.FieldHeader,
			Process:     a.Process,
			FormID:      a.FormID,
		},
		TableName:    TableName(a.Process),
		FieldName:    a.FieldName,
		FieldType:    fieldType,
		MaxLength:    number(a.Metadata["max_length"]),
		Group:        1,
		FieldHeader:  a.FieldHeader,
		Placeholder:  a.FieldName,
		Required:     truthy(a.Metadata["required"]),
		FieldOptions: options(a.Metadata["options"]),
		Types:        types,
		FormID:       a.FormID,
		ProcessID:    a.Process,
	}
}

func boxOf(a domain.Annotation) BBox {
	region, ok := a.Region()
	if !ok {
		return BBox{}
	}
	r := region.Rect
	return BBox{X1: ptr(r.X1()), Y1: ptr(r.Y1()), X2: ptr(r.X2()), Y2: ptr(r.Y2())}
}

func ptr(v float64) *float64 { return &v }

// options renders metadata.options as JSON text, "[]" when unset
func options(v any) string {
	if !truthy(v) {
		return "[]"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0
		}
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case int:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// Projector reads annotations from a store and projects them
type Projector struct {
	store *store.Store
}

// New creates a Projector
func New(s *store.Store) *Projector {
	return &Projector{store: s}
}

// FieldDefinitions returns the definitions of a process, optionally limited
// to one form.
func (p *Projector) FieldDefinitions(ctx context.Context, processID string, formID *string) ([]FieldDefinition, error) {
	anns, err := p.store.ListByProcessAndForm(ctx, processID, formID)
	if err != nil {
		return nil, err
	}
	return Project(anns), nil
}

// Reconstruct returns the pixel box of an annotation in the frame it was
// drawn in, using the page size of its process. It reports false when the
// box cannot be placed.
func Reconstruct(p *domain.Process, a domain.Annotation) (bbox.Rect, bool) {
	region, ok := a.Region()
	if !ok {
		return bbox.Rect{}, false
	}
	if region.Kind == bbox.Pixel {
		return region.Rect, true
	}
	frame, ok := p.Frame(a.Page, a.Scale)
	if !ok {
		return bbox.Rect{}, false
	}
	return region.InFrame(frame), true
}

// Encode writes definitions in the given format
func Encode(w io.Writer, defs []FieldDefinition, format string) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(defs)
	case FormatYAML:
		data, err := yaml.Marshal(defs)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
