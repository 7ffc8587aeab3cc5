// Package geo contains pure great-circle distance helpers.
package geo

import "math"

const (
	earthRadiusKm = 6371.0
	kmPerMile     = 0.621371
)

// LatLng is a coordinate pair in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceKm returns the haversine distance in kilometres between two points.
func DistanceKm(a, b LatLng) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push h marginally outside [0,1] for near-identical points
	if h < 0 {
		h = 0
	} else if h > 1 {
		h = 1
	}
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// KmToMiles converts kilometres to statute miles.
func KmToMiles(km float64) float64 {
	return km * kmPerMile
}

// Round2 rounds to two decimal places, the precision used for stored
// distances and prices.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
