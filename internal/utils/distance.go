package utils

import (
	"math"
)

// DistanceMeters returns the great-circle distance between two coordinates.
// Geofence radii and movement thresholds are expressed in meters, so this is
// the unit the engine works in.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	return haversineDistance(lat1, lon1, lat2, lon2) * 1000
}

// CalculateDistance returns the great-circle distance in kilometers.
func CalculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	return haversineDistance(lat1, lon1, lat2, lon2)
}

func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	// Convert to radians
	lat1Rad := lat1 * math.Pi / 180
	lon1Rad := lon1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lon2Rad := lon2 * math.Pi / 180

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKM * c
}

// IsWithinRadius reports whether a point lies within radiusM meters of a
// center.
func IsWithinRadius(centerLat, centerLon, pointLat, pointLon, radiusM float64) bool {
	return DistanceMeters(centerLat, centerLon, pointLat, pointLon) <= radiusM
}
