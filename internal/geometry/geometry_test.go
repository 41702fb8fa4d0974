package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const tol = 1e-9

func TestEstimateDistance_Banana(t *testing.T) {
	t.Parallel()

	in := DefaultIntrinsics().WithImage(2296, 1722)
	d, ok := DistanceForClass(DefaultHeightTable(), "banana", 100, in)
	require.True(t, ok)

	want := (0.19 * (4.0 * 2296 / 5.5385)) / 100
	assert.InDelta(t, want, d, tol)
	assert.GreaterOrEqual(t, d, MinDistanceMeters)
	assert.LessOrEqual(t, d, MaxDistanceMeters)
}

func TestEstimateDistance_Unsupported(t *testing.T) {
	t.Parallel()

	in := DefaultIntrinsics()

	tests := []struct {
		name       string
		realHeight float64
		bboxHeight float64
		in         Intrinsics
	}{
		{"unknown real height", 0, 100, in},
		{"negative real height", -1, 100, in},
		{"zero bbox height", 1.7, 0, in},
		{"negative bbox height", 1.7, -5, in},
		{"zero image width", 1.7, 100, in.WithImage(0, 1722)},
		{"zero sensor width", 1.7, 100, Intrinsics{FocalLengthMM: 4, ImageWidthPx: 100, ImageHeightPx: 100, SensorHeightMM: 4}},
		{"NaN bbox height", 1.7, math.NaN(), in},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := EstimateDistance(tt.realHeight, tt.bboxHeight, tt.in)
			assert.False(t, ok)
		})
	}

	_, ok := DistanceForClass(DefaultHeightTable(), "unicorn", 100, in)
	assert.False(t, ok, "class without a reference height is unsupported")
}

func TestEstimateDistance_Clamped(t *testing.T) {
	t.Parallel()

	in := DefaultIntrinsics()

	near, ok := EstimateDistance(0.01, 1e6, in)
	require.True(t, ok)
	assert.Equal(t, MinDistanceMeters, near)

	far, ok := EstimateDistance(3.2, 1e-4, in)
	require.True(t, ok)
	assert.Equal(t, MaxDistanceMeters, far)
}

func TestEstimateAngles_CenterIsZero(t *testing.T) {
	t.Parallel()

	sizes := []Intrinsics{
		DefaultIntrinsics(),
		DefaultIntrinsics().WithImage(640, 480),
		{FocalLengthMM: 26, SensorWidthMM: 36, SensorHeightMM: 24, ImageWidthPx: 6000, ImageHeightPx: 4000},
		{FocalLengthMM: 1, SensorWidthMM: 1, SensorHeightMM: 1, ImageWidthPx: 1, ImageHeightPx: 1},
	}
	for _, in := range sizes {
		a, ok := EstimateAngles(in.ImageWidthPx/2, in.ImageHeightPx/2, in)
		require.True(t, ok)
		assert.Equal(t, 0.0, a.Horizontal)
		assert.Equal(t, 0.0, a.Vertical)
	}
}

func TestEstimateAngles_Offsets(t *testing.T) {
	t.Parallel()

	in := DefaultIntrinsics()

	// Right edge of the image sits at half the horizontal field of view.
	a, ok := EstimateAngles(in.ImageWidthPx, in.ImageHeightPx/2, in)
	require.True(t, ok)
	assert.InDelta(t, in.HorizontalFOVDeg()/2, a.Horizontal, 1e-9)
	assert.InDelta(t, 0, a.Vertical, 1e-12)

	// Left of centre is negative, below centre is positive.
	a, ok = EstimateAngles(0, in.ImageHeightPx, in)
	require.True(t, ok)
	assert.Less(t, a.Horizontal, 0.0)
	assert.Greater(t, a.Vertical, 0.0)

	wantV := math.Atan((in.SensorHeightMM/2)/in.FocalLengthMM) * 180 / math.Pi
	assert.InDelta(t, wantV, a.Vertical, 1e-9)
}

func TestEstimateAngles_InvalidDimensions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		in            Intrinsics
		zeroHorizontal bool
		zeroVertical  bool
	}{
		{"zero image width", DefaultIntrinsics().WithImage(0, 1722), true, false},
		{"negative image height", DefaultIntrinsics().WithImage(2296, -1), false, true},
		{"infinite image width", DefaultIntrinsics().WithImage(math.Inf(1), 1722), true, false},
		{"zero focal length", Intrinsics{FocalLengthMM: 0, SensorWidthMM: 5, SensorHeightMM: 4, ImageWidthPx: 100, ImageHeightPx: 100}, true, true},
		{"zero sensor width", Intrinsics{FocalLengthMM: 4, SensorWidthMM: 0, SensorHeightMM: 4, ImageWidthPx: 100, ImageHeightPx: 100}, true, false},
		{"zero sensor height", Intrinsics{FocalLengthMM: 4, SensorWidthMM: 5, SensorHeightMM: 0, ImageWidthPx: 100, ImageHeightPx: 100}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := EstimateAngles(10, 10, tt.in)
			assert.False(t, ok)
			if tt.zeroHorizontal {
				assert.Equal(t, 0.0, a.Horizontal)
			} else {
				assert.Less(t, a.Horizontal, 0.0, "valid axis is still computed")
			}
			if tt.zeroVertical {
				assert.Equal(t, 0.0, a.Vertical)
			} else {
				assert.Less(t, a.Vertical, 0.0, "valid axis is still computed")
			}
		})
	}
}

func TestCameraRelative_Axes(t *testing.T) {
	t.Parallel()

	p := CameraRelative(10, Angles{})
	assert.InDelta(t, 0, p.X, tol)
	assert.InDelta(t, 10, p.Y, tol)
	assert.InDelta(t, 0, p.Z, tol)

	// 90° right lies entirely on +x.
	p = CameraRelative(10, Angles{Horizontal: 90})
	assert.InDelta(t, 10, p.X, tol)
	assert.InDelta(t, 0, p.Y, tol)

	// Below the optical axis is negative z.
	p = CameraRelative(10, Angles{Vertical: 30})
	assert.InDelta(t, -5, p.Z, tol)
	assert.InDelta(t, 10*math.Cos(math.Pi/6), p.Y, tol)
}

func TestPolarRoundTrip(t *testing.T) {
	t.Parallel()

	points := []r3.Vec{
		{X: 0, Y: 10, Z: 0},
		{X: 3, Y: 4, Z: 0},
		{X: -2.5, Y: 7, Z: 1.25},
		{X: 100, Y: 500, Z: -40},
		{X: 0.01, Y: 0.05, Z: -0.02},
	}
	for _, p := range points {
		pl := ToPolar(p)
		assert.InDelta(t, r3.Norm(p), pl.Distance, 1e-9)

		back := FromPolar(pl)
		assert.InDelta(t, p.X, back.X, 1e-9)
		assert.InDelta(t, p.Y, back.Y, 1e-9)
		assert.InDelta(t, p.Z, back.Z, 1e-9)
		assert.InDelta(t, pl.Distance, r3.Norm(back), 1e-9)
	}

	assert.Equal(t, Polar{}, ToPolar(r3.Vec{}))
}

func TestPolarElevationIsUpPositive(t *testing.T) {
	t.Parallel()

	up := ToPolar(r3.Vec{X: 0, Y: 10, Z: 10})
	assert.InDelta(t, 45, up.Elevation, 1e-9)
	assert.InDelta(t, 0, up.Azimuth, 1e-9)

	// A point below the optical axis has a positive vertical angle in image
	// terms and a negative elevation.
	below := CameraRelative(10, Angles{Vertical: 30})
	assert.InDelta(t, -30, ToPolar(below).Elevation, 1e-9)
}

func TestValidPosition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    r3.Vec
		want bool
	}{
		{"in front", r3.Vec{X: 1, Y: 10, Z: -1}, true},
		{"on the lateral plane", r3.Vec{X: 5, Y: 0, Z: 0}, true},
		{"behind camera", r3.Vec{X: 0, Y: -1, Z: 0}, false},
		{"behind camera far", r3.Vec{X: 3, Y: -0.001, Z: 0}, false},
		{"too close", r3.Vec{X: 0, Y: 0.01, Z: 0}, false},
		{"too far", r3.Vec{X: 0, Y: 1000.5, Z: 0}, false},
		{"NaN", r3.Vec{X: math.NaN(), Y: 1, Z: 0}, false},
		{"Inf", r3.Vec{X: 0, Y: math.Inf(1), Z: 0}, false},
		{"boundary min", r3.Vec{Y: MinPositionMeters}, true},
		{"boundary max", r3.Vec{Y: MaxPositionMeters}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidPosition(tt.p))
		})
	}

	// Any point produced from a polar form with y<0 is rejected.
	for _, az := range []float64{91, 120, 180, -135} {
		p := FromPolar(Polar{Distance: 20, Azimuth: az})
		require.Less(t, p.Y, 0.0)
		assert.False(t, ValidPosition(p), "azimuth %v", az)
	}
}

func TestLocalize(t *testing.T) {
	t.Parallel()

	l := NewLocalizer(DefaultIntrinsics(), DefaultHeightTable())

	est, ok := l.Localize("person", 960, 540, 200, 1920, 1080)
	require.True(t, ok)
	assert.InDelta(t, 0, est.Angles.Horizontal, tol)
	assert.InDelta(t, 0, est.Angles.Vertical, tol)
	assert.InDelta(t, est.Distance, est.Position.Y, tol)

	wantD := 1.7 * (4.0 * 1920 / 5.5385) / 200
	assert.InDelta(t, wantD, est.Distance, tol)

	_, ok = l.Localize("unicorn", 960, 540, 200, 1920, 1080)
	assert.False(t, ok)

	_, ok = l.Localize("person", 960, 540, 0, 1920, 1080)
	assert.False(t, ok)

	// Without an image height the vertical angle falls back to zero and
	// the distance still yields an estimate.
	est, ok = l.Localize("person", 500, 0, 100, 1000, 0)
	require.True(t, ok)
	assert.Equal(t, 0.0, est.Angles.Vertical)
	assert.InDelta(t, 0, est.Angles.Horizontal, tol)
	assert.InDelta(t, est.Distance, est.Position.Y, tol)
	assert.InDelta(t, 0, est.Position.Z, tol)

	// Without an image width there is no distance.
	_, ok = l.Localize("person", 960, 540, 200, 0, 1080)
	assert.False(t, ok)

	// Clamped far distance exceeds the position bound and is rejected.
	_, ok = l.Localize("bus", 960, 540, 0.001, 1920, 1080)
	assert.False(t, ok)
}

func TestHeightTable(t *testing.T) {
	t.Parallel()

	table := NewHeightTable(map[string]float64{"traffic cone": 0.7, "cat": 0.35, "cup": 0})

	h, ok := table.Height("traffic cone")
	require.True(t, ok)
	assert.Equal(t, 0.7, h)

	h, ok = table.Height("cat")
	require.True(t, ok)
	assert.Equal(t, 0.35, h)

	_, ok = table.Height("cup")
	assert.False(t, ok, "non-positive override removes the class")

	h, ok = DefaultHeightTable().Height("banana")
	require.True(t, ok)
	assert.Equal(t, 0.19, h)

	classes := table.Classes()
	assert.IsIncreasing(t, classes)
	assert.Contains(t, classes, "traffic cone")
	assert.NotContains(t, classes, "cup")

	var zero HeightTable
	_, ok = zero.Height("person")
	assert.False(t, ok)
}
