package vehicle

import (
	"time"

	"hfp-vehicleposition/internal/cache"
	"hfp-vehicleposition/internal/hfp"
)

// DefaultClaimTTL is how long a vehicle owns a trip after first claiming it.
const DefaultClaimTTL = 3 * time.Hour

// TripClaimRegistry allows only one vehicle at a time to publish positions
// for a scheduled trip.
type TripClaimRegistry struct {
	claims *cache.Map[hfp.TripKey, string]
}

func tripKeyHash(k hfp.TripKey) uint64 { return cache.StringHash(k.String()) }

func NewTripClaimRegistry(ttl time.Duration, opts ...cache.Option) *TripClaimRegistry {
	return &TripClaimRegistry{claims: cache.New[hfp.TripKey, string](ttl, tripKeyHash, opts...)}
}

// Claim registers vehicleID for trip if nobody owns it. It returns true when
// vehicleID is the owner after the call. The claim expires ttl after it was
// first made, regardless of later claims by the same vehicle.
func (r *TripClaimRegistry) Claim(vehicleID string, trip hfp.TripKey) bool {
	owner, _ := r.claims.PutIfAbsent(trip, vehicleID)
	return owner == vehicleID
}

// Owner returns the vehicle currently owning trip.
func (r *TripClaimRegistry) Owner(trip hfp.TripKey) (string, bool) {
	return r.claims.Get(trip)
}

func (r *TripClaimRegistry) Len() int { return r.claims.Len() }
