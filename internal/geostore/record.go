// Package geostore persists the geographic path of each tracked object.
//
// A Record is keyed by a stable string and holds parallel latitude and
// longitude slices that only ever grow. Writers merge new points through an
// optimistic read-modify-write transaction so concurrent writers for the same
// key never lose each other's points.
package geostore

import (
	"time"

	"github.com/banshee-data/geotrack/internal/geometry"
)

// Record is the durable path of one tracked object.
type Record struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Icon         string    `json:"icon"`
	Lat          []float64 `json:"lat"`
	Lon          []float64 `json:"lon"`
	Altitude     int       `json:"altitude"`
	Tracked      time.Time `json:"tracked"`
	ImageURL     *string   `json:"image_url,omitempty"`
	DetectedText *string   `json:"detected_text,omitempty"`

	// Version increases by one on every committed write. Zero means the
	// record has never been stored.
	Version int64 `json:"version"`
}

// Points returns the number of stored coordinates.
func (r *Record) Points() int {
	return min(len(r.Lat), len(r.Lon))
}

// clone returns a deep copy.
func (r *Record) clone() *Record {
	c := *r
	c.Lat = append([]float64(nil), r.Lat...)
	c.Lon = append([]float64(nil), r.Lon...)
	if r.ImageURL != nil {
		s := *r.ImageURL
		c.ImageURL = &s
	}
	if r.DetectedText != nil {
		s := *r.DetectedText
		c.DetectedText = &s
	}
	return &c
}

// sanitize repairs stored data in place: coordinates are clamped into valid
// ranges and the lat/lon slices are truncated to a common length.
func (r *Record) sanitize() {
	n := r.Points()
	r.Lat = r.Lat[:n]
	r.Lon = r.Lon[:n]
	for i := 0; i < n; i++ {
		r.Lat[i] = geometry.ClampLatitude(r.Lat[i])
		r.Lon[i] = geometry.ClampLongitude(r.Lon[i])
	}
}

// Observation is one newly observed position for a tracked object.
type Observation struct {
	Key  string
	Name string
	Icon string

	Coordinate geometry.Coordinate
	Time       time.Time

	// Image is an optional crop of the object. It is uploaded only when the
	// stored record has no image yet.
	Image []byte

	// DetectedText is optional text read from the object. It is recorded
	// only when the stored record has none yet.
	DetectedText *string
}
