package bbox

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToNormalized_RoundsToSixDigits(t *testing.T) {
	got := ToNormalized(Rect{100, 50, 300, 150}, Frame{Width: 918, Height: 1188})
	assert.Equal(t, Rect{0.108932, 0.042088, 0.326797, 0.126263}, got)
}

func TestRoundTrip(t *testing.T) {
	frames := []Frame{{918, 1188}, {1, 1}, {612.5, 792.25}, {3000, 17}}
	rects := []Rect{
		{0.1, 0.2, 0.5, 0.6},
		{0, 0, 1, 1},
		{0.123456, 0.654321, 0.999999, 0.700001},
	}
	for _, f := range frames {
		for _, r := range rects {
			back := ToNormalized(FromNormalized(r, f), f)
			for i := range r {
				assert.InDelta(t, r[i], back[i], 1e-6, "frame %v rect %v", f, r)
			}
		}
	}
}

func TestFromDrag(t *testing.T) {
	t.Run("normal drag", func(t *testing.T) {
		r, ok := FromDrag(Point{10, 20}, Point{110, 60})
		require.True(t, ok)
		assert.Equal(t, Rect{10, 20, 110, 60}, r)
	})

	t.Run("reverse drag", func(t *testing.T) {
		r, ok := FromDrag(Point{110, 60}, Point{10, 20})
		require.True(t, ok)
		assert.Equal(t, Rect{10, 20, 110, 60}, r)
	})

	t.Run("too narrow", func(t *testing.T) {
		_, ok := FromDrag(Point{0, 0}, Point{5, 20})
		assert.False(t, ok)
	})

	t.Run("too short", func(t *testing.T) {
		_, ok := FromDrag(Point{0, 0}, Point{20, 7.9})
		assert.False(t, ok)
	})

	t.Run("exactly the threshold", func(t *testing.T) {
		_, ok := FromDrag(Point{0, 0}, Point{8, 8})
		assert.True(t, ok)
	})
}

func TestParseNormalized(t *testing.T) {
	tests := []struct {
		name string
		vals []float64
		err  error
	}{
		{"valid", []float64{0.1, 0.1, 0.3, 0.2}, nil},
		{"full page", []float64{0, 0, 1, 1}, nil},
		{"short", []float64{0.1, 0.1, 0.3}, ErrShape},
		{"empty", []float64{}, ErrShape},
		{"above one", []float64{0.1, 0.1, 1.2, 0.2}, ErrOutOfRange},
		{"negative", []float64{-0.1, 0.1, 0.3, 0.2}, ErrOutOfRange},
		{"nan", []float64{math.NaN(), 0.1, 0.3, 0.2}, ErrOutOfRange},
		{"x2 before x1", []float64{0.1, 0.1, 0.05, 0.2}, ErrNotOrdered},
		{"zero height", []float64{0.1, 0.2, 0.3, 0.2}, ErrNotOrdered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseNormalized(tt.vals)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.GreaterOrEqual(t, r.X1(), 0.0)
			assert.Less(t, r.X1(), r.X2())
			assert.Less(t, r.Y1(), r.Y2())
			assert.LessOrEqual(t, r.Y2(), 1.0)
		})
	}
}

func TestParsePixel(t *testing.T) {
	r, err := ParsePixel([]float64{10, 20, 5000, 9000})
	require.NoError(t, err)
	assert.Equal(t, 4990.0, r.Width())
	assert.Equal(t, 8980.0, r.Height())

	_, err = ParsePixel([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrShape)

	_, err = ParsePixel([]float64{1, 2, math.NaN(), 4})
	assert.ErrorIs(t, err, ErrShape)
}

func TestPrimary(t *testing.T) {
	norm := &Rect{0.1, 0.1, 0.2, 0.2}
	pixel := &Rect{10, 10, 20, 20}

	g, ok := Primary(norm, pixel)
	require.True(t, ok)
	assert.Equal(t, Normalized, g.Kind)
	assert.Equal(t, Rect{150, 300, 300, 600}, g.InFrame(Frame{1500, 3000}))

	g, ok = Primary(nil, pixel)
	require.True(t, ok)
	assert.Equal(t, Pixel, g.Kind)
	assert.Equal(t, *pixel, g.InFrame(Frame{1500, 3000}))

	_, ok = Primary(nil, nil)
	assert.False(t, ok)
}
