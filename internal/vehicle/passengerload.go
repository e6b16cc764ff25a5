package vehicle

import (
	"time"

	"hfp-vehicleposition/internal/cache"
	"hfp-vehicleposition/internal/hfp"
)

const (
	DefaultPassengerLoadTTL       = 3 * time.Hour
	DefaultPassengerLoadHighWater = 10000
)

type passengerLoadKey struct {
	vehicleID string
	trip      hfp.TripKey
}

// PassengerLoadCache holds the latest passenger count of each vehicle on a trip.
type PassengerLoadCache struct {
	entries *cache.Map[passengerLoadKey, hfp.VehicleCounts]
}

// NewPassengerLoadCache creates a cache whose entries live for ttl. Once more
// than highWater entries are stored, the next insert sweeps expired ones.
func NewPassengerLoadCache(ttl time.Duration, highWater int, opts ...cache.Option) *PassengerLoadCache {
	hash := func(k passengerLoadKey) uint64 { return cache.StringHash(k.vehicleID + "|" + k.trip.String()) }
	opts = append([]cache.Option{cache.WithHighWater(highWater)}, opts...)
	return &PassengerLoadCache{entries: cache.New[passengerLoadKey, hfp.VehicleCounts](ttl, hash, opts...)}
}

func (c *PassengerLoadCache) Put(vehicleID string, trip hfp.TripKey, counts hfp.VehicleCounts) {
	c.entries.Put(passengerLoadKey{vehicleID: vehicleID, trip: trip}, counts)
}

func (c *PassengerLoadCache) Get(vehicleID string, trip hfp.TripKey) (hfp.VehicleCounts, bool) {
	return c.entries.Get(passengerLoadKey{vehicleID: vehicleID, trip: trip})
}

func (c *PassengerLoadCache) Len() int { return c.entries.Len() }
