package tracking

import (
	"math"

	"github.com/banshee-data/geotrack/internal/detection"
)

// IoU returns intersection area over union area for two axis-aligned
// rectangles. Disjoint rectangles, degenerate (zero-area) rectangles and
// non-finite inputs all yield 0.
func IoU(a, b detection.Rect) float64 {
	iw := math.Min(a.Right, b.Right) - math.Max(a.Left, b.Left)
	ih := math.Min(a.Bottom, b.Bottom) - math.Max(a.Top, b.Top)
	if !(iw > 0) || !(ih > 0) {
		return 0
	}
	inter := iw * ih
	union := a.Area() + b.Area() - inter
	if !(union > 0) || math.IsInf(union, 0) {
		return 0
	}
	return inter / union
}
