package geometry

import "github.com/golang/geo/s2"

// EarthRadiusMeters is the mean Earth radius.
const EarthRadiusMeters = 6371008.8

// GreatCircleMeters returns the great-circle distance between two
// longitude/latitude points in meters.
func GreatCircleMeters(lon1, lat1, lon2, lat2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}
