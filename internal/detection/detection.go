// Package detection converts raw per-frame detector output into internal
// Detection records in screen-space pixels and drops classes that cannot be
// tracked.
package detection

import "math"

// MaxFrameDimension bounds frame width and height in pixels. Larger frames
// are rejected so scaled boxes and their areas stay finite.
const MaxFrameDimension = 1 << 16

// Box is a detector bounding box in normalised [0,1] image fractions.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Raw is a single item of detector output for one frame.
type Raw struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Rect is an axis-aligned rectangle in screen-space pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Width returns the rectangle width, never negative.
func (r Rect) Width() float64 { return math.Max(0, r.Right-r.Left) }

// Height returns the rectangle height, never negative.
func (r Rect) Height() float64 { return math.Max(0, r.Bottom-r.Top) }

// Area returns Width*Height.
func (r Rect) Area() float64 { return r.Width() * r.Height() }

// Center returns the rectangle centre.
func (r Rect) Center() (x, y float64) {
	return (r.Left + r.Right) / 2, (r.Top + r.Bottom) / 2
}

// Detection is a normalised, class-filtered detection ready for association.
type Detection struct {
	Class      string
	Confidence float64
	Rect       Rect
}

// HeightLookup reports whether a class has a registered real-world height.
// geometry.HeightTable satisfies it.
type HeightLookup interface {
	Height(class string) (float64, bool)
}

// Classes decides which detector classes are tracked: a class must be on the
// allow-list and have a reference height.
type Classes struct {
	allowed map[string]struct{}
	heights HeightLookup
}

// NewClasses builds a class filter. A nil or empty allowList admits every
// class that has a reference height.
func NewClasses(allowList []string, heights HeightLookup) Classes {
	c := Classes{heights: heights}
	if len(allowList) > 0 {
		c.allowed = make(map[string]struct{}, len(allowList))
		for _, cls := range allowList {
			c.allowed[cls] = struct{}{}
		}
	}
	return c
}

// Tracked reports whether detections of class should be tracked.
func (c Classes) Tracked(class string) bool {
	if c.heights == nil {
		return false
	}
	if c.allowed != nil {
		if _, ok := c.allowed[class]; !ok {
			return false
		}
	}
	_, ok := c.heights.Height(class)
	return ok
}

// Normalize scales raw detections to a frame of width × height pixels and
// drops every detection whose class is not tracked. Input order is
// preserved. Frame dimensions outside (0, MaxFrameDimension] yield no
// detections. Detections with a malformed box (see Box.Valid) or a
// confidence outside [0,1] are dropped; boxes reaching past the right or
// bottom edge are clipped to the frame.
func Normalize(raws []Raw, width, height float64, classes Classes) []Detection {
	if !ValidFrameSize(width, height) {
		return nil
	}
	out := make([]Detection, 0, len(raws))
	for _, r := range raws {
		if !r.Box.Valid() || !inUnit(r.Confidence) {
			continue
		}
		if !classes.Tracked(r.Label) {
			continue
		}
		right := math.Min(r.Box.X+r.Box.W, 1)
		bottom := math.Min(r.Box.Y+r.Box.H, 1)
		out = append(out, Detection{
			Class:      r.Label,
			Confidence: r.Confidence,
			Rect: Rect{
				Left:   r.Box.X * width,
				Top:    r.Box.Y * height,
				Right:  right * width,
				Bottom: bottom * height,
			},
		})
	}
	return out
}

// Valid reports whether every field is finite and in [0,1] and the box
// keeps a positive width and height inside the frame.
func (b Box) Valid() bool {
	return inUnit(b.X) && inUnit(b.Y) && inUnit(b.W) && inUnit(b.H) &&
		b.W > 0 && b.H > 0 && b.X < 1 && b.Y < 1
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// ValidFrameSize reports whether both frame dimensions are in
// (0, MaxFrameDimension].
func ValidFrameSize(width, height float64) bool {
	return width > 0 && width <= MaxFrameDimension && height > 0 && height <= MaxFrameDimension
}
