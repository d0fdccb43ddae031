package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// earthRadiusInMeters is the Earth's volumetric mean radius, used for all
// spherical approximations in this package.
const earthRadiusInMeters = 6371000

// OrgUpdateThresholdMeters is the displacement that invalidates a resolved
// organization. Both the movement watcher and the resolver cache check use it.
const OrgUpdateThresholdMeters = 500.0

// Coordinates is a WGS84 latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceMeters returns the great-circle (haversine) distance between two
// points. NaN inputs yield NaN; validate with IsValidLatLon first.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * earthRadiusInMeters
}

// Between is DistanceMeters for two Coordinates.
func Between(a, b Coordinates) float64 {
	return DistanceMeters(a.Lat, a.Lon, b.Lat, b.Lon)
}

// RoundMeters rounds a distance to whole meters.
func RoundMeters(d float64) int {
	return int(math.Round(d))
}

// IsValidLatLon returns true if the given latitude and longitude values
// fall within the valid geographic coordinate bounds.
func IsValidLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func (c Coordinates) Valid() bool {
	return IsValidLatLon(c.Lat, c.Lon)
}
