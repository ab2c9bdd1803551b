package bbox

// Kind tells which coordinate space a Region is expressed in.
type Kind int

const (
	Normalized Kind = iota + 1
	Pixel
)

func (k Kind) String() string {
	switch k {
	case Normalized:
		return "normalized"
	case Pixel:
		return "pixel"
	default:
		return "unknown"
	}
}

// Region is a rectangle tagged with its coordinate space.
type Region struct {
	Kind Kind
	Rect Rect
}

// Primary picks the region a record should be read through. Normalized
// boxes win over pixel boxes since they do not depend on render scale.
// It reports false when neither is present.
func Primary(norm, pixel *Rect) (Region, bool) {
	switch {
	case norm != nil:
		return Region{Kind: Normalized, Rect: *norm}, true
	case pixel != nil:
		return Region{Kind: Pixel, Rect: *pixel}, true
	default:
		return Region{}, false
	}
}

// InFrame returns the region in pixel space of f.
func (g Region) InFrame(f Frame) Rect {
	if g.Kind == Normalized {
		return FromNormalized(g.Rect, f)
	}
	return g.Rect
}
