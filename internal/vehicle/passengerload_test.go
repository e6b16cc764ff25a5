package vehicle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hfp-vehicleposition/internal/cache"
	"hfp-vehicleposition/internal/hfp"
)

func TestPassengerLoadCache(t *testing.T) {
	c := NewPassengerLoadCache(DefaultPassengerLoadTTL, DefaultPassengerLoadHighWater)
	trip := hfp.TripKey{RouteID: "1", OperatingDay: "2021-01-01", StartTime: "12:00", DirectionID: "1"}

	c.Put("1/1", trip, hfp.VehicleCounts{VehicleLoad: 10, VehicleLoadRatio: 0.25})

	got, ok := c.Get("1/1", trip)
	require.True(t, ok)
	assert.InDelta(t, 0.25, got.VehicleLoadRatio, 1e-9)

	_, ok = c.Get("1/2", trip)
	assert.False(t, ok, "other vehicle on same trip")

	other := trip
	other.DirectionID = "2"
	_, ok = c.Get("1/1", other)
	assert.False(t, ok, "same vehicle on other trip")

	c.Put("1/1", trip, hfp.VehicleCounts{VehicleLoad: 20, VehicleLoadRatio: 0.5})
	got, _ = c.Get("1/1", trip)
	assert.Equal(t, 20, got.VehicleLoad, "latest snapshot wins")
}

func TestPassengerLoadCachePrunesOverCapacity(t *testing.T) {
	now := time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := NewPassengerLoadCache(time.Hour, 2, cache.WithClock(clock))
	trip := hfp.TripKey{RouteID: "1", OperatingDay: "2021-01-01", StartTime: "12:00", DirectionID: "1"}

	c.Put("1/1", trip, hfp.VehicleCounts{VehicleLoad: 1})
	c.Put("1/2", trip, hfp.VehicleCounts{VehicleLoad: 2})
	c.Put("1/3", trip, hfp.VehicleCounts{VehicleLoad: 3})
	assert.Equal(t, 3, c.Len())

	now = now.Add(2 * time.Hour)
	c.Put("1/4", trip, hfp.VehicleCounts{VehicleLoad: 4})
	assert.Equal(t, 1, c.Len())
}
