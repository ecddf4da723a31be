package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine(t *testing.T) {
	jakarta := Point{Lat: -6.2088, Lng: 106.8456}
	bandung := Point{Lat: -6.9175, Lng: 107.6191}

	d := Haversine(jakarta, bandung)
	assert.Greater(t, d, 110.0)
	assert.Less(t, d, 125.0)
	assert.InDelta(t, d, Haversine(bandung, jakarta), 1e-9)
	assert.Equal(t, 0.0, Haversine(jakarta, jakarta))

	// one degree of longitude on the equator
	oneDeg := Haversine(Point{}, Point{Lng: 1})
	assert.InDelta(t, EarthRadiusKm*math.Pi/180, oneDeg, 1e-9)
}

func TestWalkingMinutes(t *testing.T) {
	assert.Equal(t, 0, WalkingMinutes(0, 5))
	assert.Equal(t, 12, WalkingMinutes(1, 5))
	assert.Equal(t, 13, WalkingMinutes(1.01, 5))
	assert.Equal(t, 60, WalkingMinutes(5, 5))
	assert.Equal(t, 12, WalkingMinutes(1, 0), "zero speed falls back to the default pace")
	assert.Equal(t, 15, WalkingMinutes(1, 4))
}

func TestPointValidate(t *testing.T) {
	require.NoError(t, Point{Lat: 45, Lng: -120}.Validate())
	require.ErrorIs(t, Point{Lat: 91}.Validate(), ErrInvalidPoint)
	require.ErrorIs(t, Point{Lng: -180.5}.Validate(), ErrInvalidPoint)
	require.ErrorIs(t, Point{Lat: math.NaN()}.Validate(), ErrInvalidPoint)
}
