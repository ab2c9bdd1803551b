// Package bbox models page regions in pixel and normalized space.
package bbox

import (
	"errors"
	"math"
)

// MinDragSize is the smallest width or height, in pixels, a drawn rectangle
// may have before it is discarded.
const MinDragSize = 8

// precision is the number of decimal digits kept in normalized coordinates.
const precision = 1e6

var (
	ErrShape      = errors.New("bbox: expected 4 numbers")
	ErrOutOfRange = errors.New("bbox: normalized value outside [0,1]")
	ErrNotOrdered = errors.New("bbox: x2 must exceed x1 and y2 must exceed y1")
)

// Rect is a rectangle as [x1, y1, x2, y2].
type Rect [4]float64

func (r Rect) X1() float64 { return r[0] }
func (r Rect) Y1() float64 { return r[1] }
func (r Rect) X2() float64 { return r[2] }
func (r Rect) Y2() float64 { return r[3] }

// Width returns x2 - x1.
func (r Rect) Width() float64 { return r[2] - r[0] }

// Height returns y2 - y1.
func (r Rect) Height() float64 { return r[3] - r[1] }

// Point is a position in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Frame is the size of the rendered page a rectangle was drawn on.
type Frame struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Scaled returns the frame multiplied by a render scale.
func (f Frame) Scaled(scale float64) Frame {
	return Frame{Width: f.Width * scale, Height: f.Height * scale}
}

// Round6 rounds v to 6 decimal digits.
func Round6(v float64) float64 {
	return math.Round(v*precision) / precision
}

// ToNormalized divides each coordinate by the matching frame dimension.
func ToNormalized(r Rect, f Frame) Rect {
	return Rect{
		Round6(r[0] / f.Width),
		Round6(r[1] / f.Height),
		Round6(r[2] / f.Width),
		Round6(r[3] / f.Height),
	}
}

// FromNormalized maps a normalized rectangle back onto a frame.
func FromNormalized(r Rect, f Frame) Rect {
	return Rect{
		r[0] * f.Width,
		r[1] * f.Height,
		r[2] * f.Width,
		r[3] * f.Height,
	}
}

// FromDrag builds the pixel rectangle spanned by a mouse-down and mouse-up
// position. It reports false for rectangles smaller than MinDragSize in
// either axis.
func FromDrag(start, end Point) (Rect, bool) {
	r := Rect{
		math.Min(start.X, end.X),
		math.Min(start.Y, end.Y),
		math.Max(start.X, end.X),
		math.Max(start.Y, end.Y),
	}
	if r.Width() < MinDragSize || r.Height() < MinDragSize {
		return Rect{}, false
	}
	return r, true
}

// ParseNormalized checks vals as a normalized rectangle. Values outside
// [0,1] are rejected, never clamped.
func ParseNormalized(vals []float64) (Rect, error) {
	if len(vals) != 4 {
		return Rect{}, ErrShape
	}
	var r Rect
	for i, v := range vals {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return Rect{}, ErrOutOfRange
		}
		r[i] = v
	}
	if r[2] <= r[0] || r[3] <= r[1] {
		return Rect{}, ErrNotOrdered
	}
	return r, nil
}

// ParsePixel checks vals as a pixel rectangle. Pixel space has no upper
// bound; degenerate boxes are filtered when drawn.
func ParsePixel(vals []float64) (Rect, error) {
	if len(vals) != 4 {
		return Rect{}, ErrShape
	}
	var r Rect
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Rect{}, ErrShape
		}
		r[i] = v
	}
	return r, nil
}
