package geo

import (
	"fmt"
	"math"

	"github.com/noah-isme/shopping-optimizer/internal/common"
)

// EarthRadiusKm is the mean earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// DefaultWalkingSpeedKmH is the average walking pace used when no speed is configured.
const DefaultWalkingSpeedKmH = 5.0

// ErrInvalidPoint is returned when a coordinate pair is out of range or not finite.
var ErrInvalidPoint = fmt.Errorf("geo: invalid coordinates: %w", common.ErrInvalidInput)

// Point is a WGS84 latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat" koanf:"lat"`
	Lng float64 `json:"lng" koanf:"lng"`
}

// Validate reports whether the point lies on the globe.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("%w: not finite", ErrInvalidPoint)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: lat %.6f out of range", ErrInvalidPoint, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: lng %.6f out of range", ErrInvalidPoint, p.Lng)
	}
	return nil
}

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b Point) float64 {
	if a == b {
		return 0
	}
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// WalkingMinutes estimates the whole minutes needed to walk km at speedKmH.
// A non-positive speed falls back to DefaultWalkingSpeedKmH.
func WalkingMinutes(km, speedKmH float64) int {
	if km <= 0 {
		return 0
	}
	if speedKmH <= 0 || math.IsNaN(speedKmH) || math.IsInf(speedKmH, 0) {
		speedKmH = DefaultWalkingSpeedKmH
	}
	return int(math.Ceil(km / speedKmH * 60))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
