// Package geo computes great-circle distances used for
// location-mismatch detection on attendance events.
package geo

import (
	"math"

	"github.com/ephc-connect/attendance-service/internal/domain"
)

// earthRadiusMeters is the Earth's mean radius.
const earthRadiusMeters = 6371000.0

// DefaultRadiusMeters is the geofence radius applied when a facility has no
// explicit override.
const DefaultRadiusMeters = 100.0

// DistanceMeters returns the haversine distance between two coordinates.
func DistanceMeters(a, b domain.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// WithinRadius reports whether actual lies within maxMeters of expected.
// Non-positive maxMeters falls back to the default radius.
func WithinRadius(expected, actual domain.Coordinate, maxMeters float64) bool {
	if maxMeters <= 0 {
		maxMeters = DefaultRadiusMeters
	}
	return DistanceMeters(expected, actual) <= maxMeters
}
