package geometry

import "math"

// Distance clamp bounds in metres. Outputs outside this range are physically
// implausible for a handheld camera and are clamped rather than propagated.
const (
	MinDistanceMeters = 0.1
	MaxDistanceMeters = 2000.0
)

// EstimateDistance applies the pinhole model
//
//	distance = realHeight * focalLengthPx / bboxHeightPx
//
// where focalLengthPx = focalLengthMM * imageWidthPx / sensorWidthMM.
// It returns false when the real height is unknown (≤0), the box height or
// image width is ≤0, or the intrinsics are otherwise unusable.
func EstimateDistance(realHeightM, bboxHeightPx float64, in Intrinsics) (float64, bool) {
	if !(realHeightM > 0) || !(bboxHeightPx > 0) || !(in.ImageWidthPx > 0) {
		return 0, false
	}
	if !(in.FocalLengthMM > 0) || !(in.SensorWidthMM > 0) {
		return 0, false
	}
	d := (realHeightM * in.FocalLengthPx()) / bboxHeightPx
	if math.IsNaN(d) {
		return 0, false
	}
	return clamp(d, MinDistanceMeters, MaxDistanceMeters), true
}

// DistanceForClass looks up the class height and estimates distance. Classes
// without a registered height are unsupported.
func DistanceForClass(heights HeightTable, class string, bboxHeightPx float64, in Intrinsics) (float64, bool) {
	h, ok := heights.Height(class)
	if !ok {
		return 0, false
	}
	return EstimateDistance(h, bboxHeightPx, in)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
