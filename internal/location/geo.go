// ABOUTME: Great-circle distance helpers for location samples
// ABOUTME: Haversine distance on a spherical earth and an inclusive radius test

package location

import "math"

// EarthRadiusMeters is the mean earth radius used by DistanceMeters.
const EarthRadiusMeters = 6371e3

// DistanceMeters returns the haversine distance between two points given in degrees.
func DistanceMeters(latA, lngA, latB, lngB float64) float64 {
	phiA := latA * math.Pi / 180
	phiB := latB * math.Pi / 180
	dPhi := (latB - latA) * math.Pi / 180
	dLambda := (lngB - lngA) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phiA)*math.Cos(phiB)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// IsNear reports whether B lies within radius meters of A. The boundary is inclusive.
func IsNear(latA, lngA, latB, lngB, radius float64) bool {
	return DistanceMeters(latA, lngA, latB, lngB) <= radius
}
