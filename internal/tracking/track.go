package tracking

import (
	"github.com/banshee-data/geotrack/internal/detection"
	"github.com/banshee-data/geotrack/internal/geometry"
)

// Spatial is a track's camera-relative 3D state. Angles are degrees;
// distances and coordinates are metres (x lateral, y forward, z up).
type Spatial struct {
	Distance        float64 `json:"distance"`
	HorizontalAngle float64 `json:"horizontal_angle"`
	VerticalAngle   float64 `json:"vertical_angle"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Z               float64 `json:"z"`
}

func spatialFromEstimate(e geometry.Estimate) *Spatial {
	return &Spatial{
		Distance:        e.Distance,
		HorizontalAngle: e.Angles.Horizontal,
		VerticalAngle:   e.Angles.Vertical,
		X:               e.Position.X,
		Y:               e.Position.Y,
		Z:               e.Position.Z,
	}
}

// Track is a persistent identity for one physical object across frames.
// ID and Class never change after creation. Spatial is nil until the first
// successful geometric estimate; a later failed estimate leaves the previous
// value in place.
type Track struct {
	ID                int64            `json:"id"`
	Class             string           `json:"class"`
	Rect              detection.Rect   `json:"rect"`
	Confidence        float64          `json:"confidence"`
	FramesSinceUpdate int              `json:"frames_since_update"`
	History           []detection.Rect `json:"history"`
	Color             string           `json:"color"`
	Spatial           *Spatial         `json:"spatial,omitempty"`

	// Updated is true when the track was created or matched in the most
	// recent frame.
	Updated bool `json:"updated"`
}

// Estimated reports whether the track has a 3D estimate.
func (t *Track) Estimated() bool {
	return t.Spatial != nil
}

// clone returns a deep copy safe to hand outside the tracker.
func (t *Track) clone() Track {
	c := *t
	c.History = make([]detection.Rect, len(t.History))
	copy(c.History, t.History)
	if t.Spatial != nil {
		s := *t.Spatial
		c.Spatial = &s
	}
	return c
}

func (t *Track) pushHistory(r detection.Rect, capacity int) {
	t.History = append(t.History, r)
	if capacity > 0 && len(t.History) > capacity {
		// Oldest first out; reuse the backing array.
		n := copy(t.History, t.History[len(t.History)-capacity:])
		t.History = t.History[:n]
	}
}
