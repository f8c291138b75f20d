package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		expectedKm             float64
		tolerance              float64
	}{
		{"same point", 41.0, 29.0, 41.0, 29.0, 0, 0.001},
		// Kadıköy to Beşiktaş, across the Bosphorus.
		{"istanbul short hop", 40.99, 29.03, 41.04, 29.00, 6.1, 0.5},
		{"istanbul to ankara", 41.01, 28.98, 39.93, 32.86, 351, 5},
		{"one degree of latitude", 40.0, 29.0, 41.0, 29.0, 111.2, 0.5},
		{"across the antimeridian", 0, 179.9, 0, -179.9, 22.2, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DistanceKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			assert.InDelta(t, tt.expectedKm, d, tt.tolerance)
		})
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	a := DistanceKm(41.0, 29.0, 39.9, 32.8)
	b := DistanceKm(39.9, 32.8, 41.0, 29.0)
	assert.InDelta(t, a, b, 1e-9)
}

func TestBoxAround_ContainsRadius(t *testing.T) {
	box := BoxAround(41.0, 29.0, 20)

	// Points 20 km due north/south/east/west must fall inside the box.
	north := 41.0 + 20.0/111.0
	assert.LessOrEqual(t, north, box.MaxLat)
	assert.GreaterOrEqual(t, 41.0-20.0/111.0, box.MinLat)
	assert.Greater(t, box.MaxLng, 29.0)
	assert.Less(t, box.MinLng, 29.0)

	// The box must not be absurdly larger than the circle at mid latitudes.
	assert.Less(t, box.MaxLat-box.MinLat, 1.0)
	assert.Less(t, box.MaxLng-box.MinLng, 1.0)
}

func TestBoxAround_AntimeridianWidensToEverything(t *testing.T) {
	// A 20 km circle at 179.95°E reaches past the antimeridian; the box
	// must still contain a point at 179.95°W, which it can only do by
	// covering the full longitude range.
	box := BoxAround(0, 179.95, 20)
	assert.Equal(t, -180.0, box.MinLng)
	assert.Equal(t, 180.0, box.MaxLng)

	farSide := -179.95
	assert.GreaterOrEqual(t, farSide, box.MinLng)
	assert.LessOrEqual(t, farSide, box.MaxLng)
	assert.InDelta(t, 11.1, DistanceKm(0, 179.95, 0, farSide), 0.5,
		"the far-side point really is inside the 20 km radius")

	// Same on the western side.
	box = BoxAround(0, -179.95, 20)
	assert.Equal(t, -180.0, box.MinLng)
	assert.Equal(t, 180.0, box.MaxLng)
}

func TestBoxAround_NearPole(t *testing.T) {
	box := BoxAround(89.9, 0, 20)
	// Longitude degenerates near the pole; the box widens to everything.
	assert.LessOrEqual(t, box.MinLng, -179.0)
	assert.GreaterOrEqual(t, box.MaxLng, 179.0)
}

func TestAggregate(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("empty input is undefined cluster", func(t *testing.T) {
		c := Aggregate(nil)
		assert.False(t, c.Defined())
		assert.Zero(t, c.SignalCount)
	})

	t.Run("distinct devices counted once", func(t *testing.T) {
		c := Aggregate([]Signal{
			{DeviceID: "a", PGA: 0.04, Lat: 41.0, Lng: 29.0, ObservedAt: now},
			{DeviceID: "a", PGA: 0.06, Lat: 41.0, Lng: 29.0, ObservedAt: now},
			{DeviceID: "b", PGA: 0.08, Lat: 41.2, Lng: 29.2, ObservedAt: now},
		})
		assert.Equal(t, 2, c.SignalCount)
		assert.InDelta(t, 0.06, c.AvgPGA, 1e-9)
		assert.InDelta(t, 0.08, c.MaxPGA, 1e-9)
	})

	t.Run("centroid is mean of signal coordinates", func(t *testing.T) {
		c := Aggregate([]Signal{
			{DeviceID: "a", PGA: 0.05, Lat: 41.0, Lng: 29.0, ObservedAt: now},
			{DeviceID: "b", PGA: 0.05, Lat: 41.2, Lng: 29.4, ObservedAt: now},
		})
		assert.InDelta(t, 41.1, c.CentroidLat, 1e-9)
		assert.InDelta(t, 29.2, c.CentroidLng, 1e-9)
	})
}

func TestCellKey(t *testing.T) {
	// Nearby points share a cell; distant points do not.
	assert.Equal(t, CellKey(41.01, 29.01), CellKey(41.02, 29.02))
	assert.NotEqual(t, CellKey(41.0, 29.0), CellKey(39.9, 32.8))

	// Negative coordinates quantize without colliding with positive ones.
	assert.NotEqual(t, CellKey(0.1, 0.1), CellKey(-0.1, -0.1))
}
