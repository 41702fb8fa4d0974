package geometry

import (
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"gonum.org/v1/gonum/spatial/r3"
)

// EarthRadiusMeters is the mean Earth radius used for local projection.
const EarthRadiusMeters = 6371008.8

// Fix is a device position supplied by the location collaborator. Heading is
// the camera bearing in degrees clockwise from true north; zero when unknown.
type Fix struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Altitude float64 `json:"altitude"`
	Heading  float64 `json:"heading"`
}

// Valid reports whether the fix has finite in-range coordinates.
func (f Fix) Valid() bool {
	if !finite(f.Lat) || !finite(f.Lon) || !finite(f.Altitude) || !finite(f.Heading) {
		return false
	}
	return s2.LatLngFromDegrees(f.Lat, f.Lon).IsValid()
}

// Coordinate is a projected geographic point.
type Coordinate struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Altitude int     `json:"altitude"`
}

// Project places a camera-relative point on the globe around the device fix.
// The horizontal offset is rotated by the fix heading into east/north metres
// and applied as a local tangent-plane displacement; altitude is the device
// altitude plus z, rounded to whole metres. Latitude is clamped and
// longitude wrapped into range.
func Project(fix Fix, p r3.Vec) Coordinate {
	theta := degToRad(fix.Heading)
	east := p.Y*math.Sin(theta) + p.X*math.Cos(theta)
	north := p.Y*math.Cos(theta) - p.X*math.Sin(theta)

	origin := s2.LatLngFromDegrees(fix.Lat, fix.Lon)
	cosLat := math.Cos(origin.Lat.Radians())
	if cosLat < 1e-9 {
		// At the poles every direction is south; drop the east component.
		cosLat = math.Inf(1)
	}

	ll := s2.LatLng{
		Lat: origin.Lat + s1.Angle(north/EarthRadiusMeters)*s1.Radian,
		Lng: origin.Lng + s1.Angle(east/(EarthRadiusMeters*cosLat))*s1.Radian,
	}.Normalized()

	return Coordinate{
		Lat:      ll.Lat.Degrees(),
		Lon:      ll.Lng.Degrees(),
		Altitude: int(math.Round(fix.Altitude + p.Z)),
	}
}

// GroundDistance returns the great-circle distance in metres between two
// points.
func GroundDistance(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadiusMeters
}

// ClampLatitude clamps lat into [-90, 90]. NaN becomes 0.
func ClampLatitude(lat float64) float64 {
	if math.IsNaN(lat) {
		return 0
	}
	return clamp(lat, -90, 90)
}

// ClampLongitude clamps lon into [-180, 180]. NaN becomes 0.
func ClampLongitude(lon float64) float64 {
	if math.IsNaN(lon) {
		return 0
	}
	return clamp(lon, -180, 180)
}
