package geometry

import (
	"math"

	"github.com/banshee-data/geotrack/internal/config"
)

// Intrinsics describes the pinhole camera used for distance and angle
// estimation. ImageWidthPx/ImageHeightPx are the reference image dimensions;
// callers working in a different render size use WithImage.
type Intrinsics struct {
	FocalLengthMM  float64
	SensorWidthMM  float64
	SensorHeightMM float64
	ImageWidthPx   float64
	ImageHeightPx  float64
}

// DefaultIntrinsics returns the built-in phone-camera approximation:
// 4.0 mm focal length on a 5.5385 × 4.1539 mm sensor at 2296 × 1722 px.
func DefaultIntrinsics() Intrinsics {
	return Intrinsics{
		FocalLengthMM:  4.0,
		SensorWidthMM:  5.5385,
		SensorHeightMM: 4.1539,
		ImageWidthPx:   2296,
		ImageHeightPx:  1722,
	}
}

// IntrinsicsFromTuning builds Intrinsics from a loaded TuningConfig.
func IntrinsicsFromTuning(cfg *config.TuningConfig) Intrinsics {
	return Intrinsics{
		FocalLengthMM:  cfg.GetFocalLengthMM(),
		SensorWidthMM:  cfg.GetSensorWidthMM(),
		SensorHeightMM: cfg.GetSensorHeightMM(),
		ImageWidthPx:   cfg.GetImageWidthPx(),
		ImageHeightPx:  cfg.GetImageHeightPx(),
	}
}

// WithImage returns a copy of the intrinsics for an image of the given size.
func (in Intrinsics) WithImage(widthPx, heightPx float64) Intrinsics {
	in.ImageWidthPx = widthPx
	in.ImageHeightPx = heightPx
	return in
}

// Valid reports whether every intrinsic is strictly positive and finite.
func (in Intrinsics) Valid() bool {
	for _, v := range []float64{in.FocalLengthMM, in.SensorWidthMM, in.SensorHeightMM, in.ImageWidthPx, in.ImageHeightPx} {
		if !(v > 0) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// FocalLengthPx converts the focal length into pixels along the image width.
func (in Intrinsics) FocalLengthPx() float64 {
	return in.FocalLengthMM * (in.ImageWidthPx / in.SensorWidthMM)
}

// HorizontalFOVDeg is the horizontal field of view implied by the sensor
// width and focal length.
func (in Intrinsics) HorizontalFOVDeg() float64 {
	return 2 * math.Atan(in.SensorWidthMM/(2*in.FocalLengthMM)) * 180 / math.Pi
}
