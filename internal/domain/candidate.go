package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Candidate is one item of a bulk save, parsed but not yet validated.
//
// Fields a client sent with the wrong JSON type come out as absent: a page
// that is not a number has a nil Page, a box that is not an array is nil.
// Box elements are cast to numbers; elements that cannot be cast are NaN.
type Candidate struct {
	Process     string
	FormID      *string
	FieldID     *string
	FieldName   string
	FieldHeader string
	BBoxPixel   []float64
	BBoxNorm    []float64
	Page        *float64
	Scale       float64
	FieldType   string
	Metadata    map[string]any
}

type rawCandidate struct {
	Process     json.RawMessage `json:"process"`
	FormID      json.RawMessage `json:"form_id"`
	FieldID     json.RawMessage `json:"field_id"`
	FieldName   json.RawMessage `json:"field_name"`
	FieldHeader json.RawMessage `json:"field_header"`
	BBoxPixel   json.RawMessage `json:"bbox_pixel"`
	BBoxNorm    json.RawMessage `json:"bbox_norm"`
	Page        json.RawMessage `json:"page"`
	Scale       json.RawMessage `json:"scale"`
	FieldType   json.RawMessage `json:"field_type"`
	Metadata    json.RawMessage `json:"metadata"`
}

// ParseCandidate decodes one bulk item. It never fails; an item that is not
// a JSON object parses to an empty candidate and fails validation.
func ParseCandidate(data []byte) Candidate {
	var raw rawCandidate
	if err := json.Unmarshal(data, &raw); err != nil {
		return Candidate{}
	}

	c := Candidate{
		Process:     Identifier(raw.Process),
		FormID:      optionalIdentifier(raw.FormID),
		FieldID:     optionalIdentifier(raw.FieldID),
		FieldName:   stringValue(raw.FieldName),
		FieldHeader: stringValue(raw.FieldHeader),
		BBoxPixel:   numberArray(raw.BBoxPixel),
		BBoxNorm:    numberArray(raw.BBoxNorm),
		FieldType:   stringValue(raw.FieldType),
	}

	var page float64
	if isJSONNumber(raw.Page) && json.Unmarshal(raw.Page, &page) == nil {
		c.Page = &page
	}
	if n := castNumber(raw.Scale); !math.IsNaN(n) {
		c.Scale = n
	}
	if len(raw.Metadata) > 0 {
		var md map[string]any
		if json.Unmarshal(raw.Metadata, &md) == nil {
			c.Metadata = md
		}
	}
	return c
}

func isJSONNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	ch := raw[0]
	return ch == '-' || (ch >= '0' && ch <= '9')
}

// Identifier accepts a JSON string or number and returns its text form.
// Other values give the empty string.
func Identifier(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if isJSONNumber(raw) {
		return string(raw)
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

// optionalIdentifier is Identifier with empty values mapped to nil.
func optionalIdentifier(raw json.RawMessage) *string {
	s := Identifier(raw)
	if s == "" {
		return nil
	}
	return &s
}

func stringValue(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

// numberArray returns nil when raw is not a JSON array.
func numberArray(raw json.RawMessage) []float64 {
	var elems []json.RawMessage
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' || json.Unmarshal(raw, &elems) != nil {
		return nil
	}
	out := make([]float64, len(elems))
	for i, e := range elems {
		out[i] = castNumber(e)
	}
	return out
}

// castNumber converts a JSON scalar to a number: numbers as-is, numeric
// strings parsed, null and empty strings as 0, booleans as 0 or 1.
// Anything else is NaN.
func castNumber(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0:
		return math.NaN()
	case isJSONNumber(raw):
		var n float64
		if json.Unmarshal(raw, &n) == nil {
			return n
		}
		return math.NaN()
	case string(raw) == "null", string(raw) == "false":
		return 0
	case string(raw) == "true":
		return 1
	}

	var s string
	if json.Unmarshal(raw, &s) != nil {
		return math.NaN()
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}
