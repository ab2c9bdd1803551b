package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/fieldmap/internal/bbox"
)

type processSet map[string]bool

func (p processSet) HasProcess(id string) bool { return p[id] }

var known = processSet{"p1": true, "42": true}

func reason(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		return ""
	}
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected *ValidationError, got %T", err)
	return ve.Reason
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{"valid normalized", `{"process":"p1","page":1,"field_name":"name","bbox_norm":[0.1,0.1,0.3,0.2]}`, ""},
		{"valid pixel", `{"process":"p1","page":3,"field_name":"name","bbox_pixel":[10,10,300,40]}`, ""},
		{"numeric process id", `{"process":42,"page":1,"field_name":"n","bbox_pixel":[1,2,3,4]}`, ""},
		{"numeric strings in box", `{"process":"p1","page":1,"field_name":"n","bbox_norm":["0.1","0.1","0.3","0.2"]}`, ""},
		{"unknown process", `{"process":"nope","page":1,"field_name":"n","bbox_norm":[0.1,0.1,0.3,0.2]}`, MsgInvalidProcess},
		{"missing process", `{"page":1,"field_name":"n","bbox_norm":[0.1,0.1,0.3,0.2]}`, MsgInvalidProcess},
		{"page zero", `{"process":"p1","page":0,"field_name":"n","bbox_norm":[0.1,0.1,0.3,0.2]}`, MsgInvalidPage},
		{"page as string", `{"process":"p1","page":"1","field_name":"n","bbox_norm":[0.1,0.1,0.3,0.2]}`, MsgInvalidPage},
		{"fractional page", `{"process":"p1","page":1.5,"field_name":"n","bbox_norm":[0.1,0.1,0.3,0.2]}`, MsgInvalidPage},
		{"page overflows", `{"process":"p1","page":1e19,"field_name":"n","bbox_norm":[0.1,0.1,0.3,0.2]}`, MsgInvalidPage},
		{"missing page", `{"process":"p1","field_name":"n","bbox_norm":[0.1,0.1,0.3,0.2]}`, MsgInvalidPage},
		{"empty field name", `{"process":"p1","page":1,"field_name":"","bbox_norm":[0.1,0.1,0.3,0.2]}`, MsgFieldName},
		{"field name not a string", `{"process":"p1","page":1,"field_name":7,"bbox_norm":[0.1,0.1,0.3,0.2]}`, MsgFieldName},
		{"norm wrong length", `{"process":"p1","page":1,"field_name":"n","bbox_norm":[0.1,0.1,0.3]}`, MsgNormShape},
		{"norm out of range", `{"process":"p1","page":1,"field_name":"n","bbox_norm":[0.1,0.1,1.3,0.2]}`, MsgNormRange},
		{"norm not numeric", `{"process":"p1","page":1,"field_name":"n","bbox_norm":["a",0.1,0.3,0.2]}`, MsgNormRange},
		{"norm x2 before x1", `{"process":"p1","page":1,"field_name":"n","bbox_norm":[0.1,0.1,0.05,0.2]}`, MsgNormOrder},
		{"norm wins over valid pixel", `{"process":"p1","page":1,"field_name":"n","bbox_norm":[0.5,0.1,0.3,0.2],"bbox_pixel":[1,2,3,4]}`, MsgNormOrder},
		{"norm not an array falls back to pixel", `{"process":"p1","page":1,"field_name":"n","bbox_norm":"x","bbox_pixel":[1,2,3,4]}`, ""},
		{"pixel wrong length", `{"process":"p1","page":1,"field_name":"n","bbox_pixel":[1,2,3]}`, MsgPixelShape},
		{"no box", `{"process":"p1","page":1,"field_name":"n"}`, MsgBBoxRequired},
		{"not an object", `17`, MsgInvalidProcess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(ParseCandidate([]byte(tt.json)), known)
			assert.Equal(t, tt.want, reason(t, err))
		})
	}
}

func TestValidate_Deterministic(t *testing.T) {
	c := ParseCandidate([]byte(`{"process":"p1","page":1,"field_name":"n","bbox_norm":[0.1,0.1,0.05,0.2]}`))
	first := Validate(c, known)
	second := Validate(c, known)
	assert.Equal(t, first, second)
}

func TestNewAnnotation_Defaults(t *testing.T) {
	c := ParseCandidate([]byte(`{"process":"p1","page":2,"field_name":"name","bbox_norm":[0.1,0.1,0.3,0.2]}`))
	require.NoError(t, Validate(c, known))

	a := NewAnnotation(c)
	assert.True(t, a.IsDraft())
	assert.Equal(t, "p1", a.Process)
	assert.Nil(t, a.FormID)
	assert.Nil(t, a.FieldID)
	assert.Equal(t, "", a.FieldHeader)
	assert.Equal(t, "", a.FieldType)
	assert.Equal(t, map[string]any{}, a.Metadata)
	assert.Equal(t, 1.0, a.Scale)
	assert.Equal(t, 2, a.Page)
	assert.Nil(t, a.BBoxPixel)
	require.NotNil(t, a.BBoxNorm)
	assert.Equal(t, bbox.Rect{0.1, 0.1, 0.3, 0.2}, *a.BBoxNorm)
}

func TestNewAnnotation_CastsAndKeepsValues(t *testing.T) {
	c := ParseCandidate([]byte(`{
		"process":"p1","form_id":20,"field_id":"f-9","page":1,"scale":"1.5",
		"field_name":"total","field_header":"Total","field_type":"DecimalField",
		"bbox_norm":["0.1","0.2","0.3","0.4"],"bbox_pixel":[10,"20",30,40],
		"metadata":{"required":true,"max_length":12}
	}`))
	require.NoError(t, Validate(c, known))

	a := NewAnnotation(c)
	require.NotNil(t, a.FormID)
	assert.Equal(t, "20", *a.FormID)
	require.NotNil(t, a.FieldID)
	assert.Equal(t, "f-9", *a.FieldID)
	assert.Equal(t, 1.5, a.Scale)
	assert.Equal(t, "Total", a.FieldHeader)
	assert.Equal(t, "DecimalField", a.FieldType)
	assert.Equal(t, bbox.Rect{0.1, 0.2, 0.3, 0.4}, *a.BBoxNorm)
	assert.Equal(t, bbox.Rect{10, 20, 30, 40}, *a.BBoxPixel)
	assert.Equal(t, true, a.Metadata["required"])
}

func TestNewAnnotation_DropsMalformedPixelBox(t *testing.T) {
	c := ParseCandidate([]byte(`{"process":"p1","page":1,"field_name":"n","bbox_norm":[0.1,0.1,0.3,0.2],"bbox_pixel":[1,"x"]}`))
	require.NoError(t, Validate(c, known))
	a := NewAnnotation(c)
	assert.Nil(t, a.BBoxPixel)
	assert.NotNil(t, a.BBoxNorm)
}

func TestParseCandidate_EmptyFormIDIsNil(t *testing.T) {
	c := ParseCandidate([]byte(`{"form_id":"","field_id":null}`))
	assert.Nil(t, c.FormID)
	assert.Nil(t, c.FieldID)
}

func TestCastNumber(t *testing.T) {
	assert.Equal(t, 2.5, castNumber([]byte(`2.5`)))
	assert.Equal(t, 2.5, castNumber([]byte(`" 2.5 "`)))
	assert.Equal(t, 0.0, castNumber([]byte(`null`)))
	assert.Equal(t, 0.0, castNumber([]byte(`""`)))
	assert.Equal(t, 1.0, castNumber([]byte(`true`)))
	assert.True(t, math.IsNaN(castNumber([]byte(`"abc"`))))
	assert.True(t, math.IsNaN(castNumber([]byte(`{}`))))
}

func TestProcessFrame(t *testing.T) {
	p := Process{Pages: []PageSize{{Width: 612, Height: 792}}}

	f, ok := p.Frame(1, 1.5)
	require.True(t, ok)
	assert.Equal(t, bbox.Frame{Width: 918, Height: 1188}, f)

	_, ok = p.Frame(2, 1)
	assert.False(t, ok)
}
