package geometry

import "sort"

// defaultHeights are assumed real-world object heights in metres, keyed by
// detector class label.
var defaultHeights = map[string]float64{
	"person":        1.7,
	"bicycle":       1.0,
	"car":           1.5,
	"motorcycle":    1.1,
	"bus":           3.2,
	"truck":         3.0,
	"traffic light": 0.9,
	"stop sign":     0.75,
	"fire hydrant":  0.6,
	"bench":         0.85,
	"dog":           0.6,
	"cat":           0.3,
	"bottle":        0.25,
	"cup":           0.1,
	"chair":         0.9,
	"potted plant":  0.5,
	"banana":        0.19,
	"apple":         0.08,
	"orange":        0.08,
	"laptop":        0.25,
	"cell phone":    0.15,
	"book":          0.23,
}

// HeightTable maps class labels to assumed real-world heights in metres.
// The zero value knows no classes.
type HeightTable struct {
	heights map[string]float64
}

// DefaultHeightTable returns the built-in class height table.
func DefaultHeightTable() HeightTable {
	return NewHeightTable(nil)
}

// NewHeightTable returns the built-in table with overrides merged over it.
// Non-positive overrides remove the class.
func NewHeightTable(overrides map[string]float64) HeightTable {
	h := make(map[string]float64, len(defaultHeights)+len(overrides))
	for k, v := range defaultHeights {
		h[k] = v
	}
	for k, v := range overrides {
		if v <= 0 {
			delete(h, k)
			continue
		}
		h[k] = v
	}
	return HeightTable{heights: h}
}

// Height returns the assumed height for class, or false when the class has
// no registered height.
func (t HeightTable) Height(class string) (float64, bool) {
	h, ok := t.heights[class]
	return h, ok
}

// Classes returns every class with a registered height, sorted.
func (t HeightTable) Classes() []string {
	out := make([]string, 0, len(t.heights))
	for k := range t.heights {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
