package geometry

import "math"

// Angles is an angular offset from the optical axis, in degrees.
// Horizontal is positive to the right of centre; Vertical is positive below
// centre (image rows grow downward).
type Angles struct {
	Horizontal float64
	Vertical   float64
}

// EstimateAngles computes the angular offset of pixel (px, py) from the image
// centre. The pixel offset is converted to millimetres on the sensor plane
// using per-axis pixels-per-mm, then atan(Δmm / focalLengthMM).
//
// Each axis is computed independently. An axis whose image, sensor or focal
// dimension is not positive and finite falls back to a zero angle; ok is
// true only when both axes were computed.
func EstimateAngles(px, py float64, in Intrinsics) (a Angles, ok bool) {
	h, okH := axisAngle(px, in.ImageWidthPx, in.SensorWidthMM, in.FocalLengthMM)
	v, okV := axisAngle(py, in.ImageHeightPx, in.SensorHeightMM, in.FocalLengthMM)
	return Angles{Horizontal: h, Vertical: v}, okH && okV
}

func axisAngle(p, imagePx, sensorMM, focalMM float64) (float64, bool) {
	if !positiveFinite(imagePx) || !positiveFinite(sensorMM) || !positiveFinite(focalMM) {
		return 0, false
	}
	pxPerMM := imagePx / sensorMM
	offsetMM := (p - imagePx/2) / pxPerMM
	deg := radToDeg(math.Atan(offsetMM / focalMM))
	if !finite(deg) {
		return 0, false
	}
	return deg, true
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }
