package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Bounds on the magnitude of an accepted camera-relative position, metres.
const (
	MinPositionMeters = 0.05
	MaxPositionMeters = 1000.0
)

// CameraRelative converts a distance along the ray at the given angles into
// a camera-relative point:
//
//	y = d·cos(h)·cos(v)   forward
//	x = d·sin(h)·cos(v)   lateral
//	z = -d·sin(v)         vertical, up positive
func CameraRelative(distance float64, a Angles) r3.Vec {
	h := degToRad(a.Horizontal)
	v := degToRad(a.Vertical)
	return r3.Vec{
		X: distance * math.Sin(h) * math.Cos(v),
		Y: distance * math.Cos(h) * math.Cos(v),
		Z: -distance * math.Sin(v),
	}
}

// ValidPosition accepts p only when its magnitude is finite and within
// [MinPositionMeters, MaxPositionMeters] and it lies in front of the camera.
func ValidPosition(p r3.Vec) bool {
	if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
		return false
	}
	n := r3.Norm(p)
	if !finite(n) || n < MinPositionMeters || n > MaxPositionMeters {
		return false
	}
	return p.Y >= 0
}

// Polar is a camera-relative position in spherical form. Azimuth is positive
// to the right, Elevation positive upward; both in degrees.
type Polar struct {
	Distance  float64
	Azimuth   float64
	Elevation float64
}

// ToPolar converts a camera-relative point to distance, azimuth and
// elevation. The zero vector maps to the zero Polar.
func ToPolar(p r3.Vec) Polar {
	d := r3.Norm(p)
	if d == 0 {
		return Polar{}
	}
	return Polar{
		Distance:  d,
		Azimuth:   radToDeg(math.Atan2(p.X, p.Y)),
		Elevation: radToDeg(math.Asin(clamp(p.Z/d, -1, 1))),
	}
}

// FromPolar is the inverse of ToPolar.
func FromPolar(pl Polar) r3.Vec {
	// Elevation is up-positive while CameraRelative's vertical angle is
	// down-positive.
	return CameraRelative(pl.Distance, Angles{Horizontal: pl.Azimuth, Vertical: -pl.Elevation})
}

// Estimate is a complete geometric estimate for one bounding box.
type Estimate struct {
	Distance float64
	Angles   Angles
	Position r3.Vec
}

// Localizer bundles the intrinsics and height table used to estimate a
// bounding box's position. The zero value is unusable; use NewLocalizer.
type Localizer struct {
	Intrinsics Intrinsics
	Heights    HeightTable
}

// NewLocalizer returns a Localizer with the given intrinsics and heights.
func NewLocalizer(in Intrinsics, heights HeightTable) Localizer {
	return Localizer{Intrinsics: in, Heights: heights}
}

// Localize estimates the position of a box of the given class whose centre is
// (centerX, centerY) and height is heightPx, in an image of imageWidthPx ×
// imageHeightPx. It returns false when there is no distance estimate or the
// resulting position is invalid.
func (l Localizer) Localize(class string, centerX, centerY, heightPx, imageWidthPx, imageHeightPx float64) (Estimate, bool) {
	in := l.Intrinsics.WithImage(imageWidthPx, imageHeightPx)

	d, ok := DistanceForClass(l.Heights, class, heightPx, in)
	if !ok {
		return Estimate{}, false
	}
	// An axis without usable dimensions contributes a zero angle; the
	// distance alone still places the object on the optical axis.
	a, _ := EstimateAngles(centerX, centerY, in)
	p := CameraRelative(d, a)
	if !ValidPosition(p) {
		return Estimate{}, false
	}
	return Estimate{Distance: d, Angles: a, Position: p}, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
