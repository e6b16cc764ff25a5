package vehicle

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hfp-vehicleposition/internal/cache"
	"hfp-vehicleposition/internal/hfp"
)

var trip2550 = hfp.TripKey{RouteID: "2550", OperatingDay: "2019-08-17", StartTime: "09:16", DirectionID: "1"}

func TestTripClaimSingleOwner(t *testing.T) {
	r := NewTripClaimRegistry(DefaultClaimTTL)

	assert.True(t, r.Claim("10/1515", trip2550))
	assert.False(t, r.Claim("10/1516", trip2550))
	assert.True(t, r.Claim("10/1515", trip2550), "owner may claim again")

	owner, ok := r.Owner(trip2550)
	assert.True(t, ok)
	assert.Equal(t, "10/1515", owner)
}

func TestTripClaimExpiresFromCreation(t *testing.T) {
	now := time.Date(2019, 8, 17, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	r := NewTripClaimRegistry(DefaultClaimTTL, cache.WithClock(clock))
	assert.True(t, r.Claim("v1", trip2550))

	advance(2 * time.Hour)
	assert.True(t, r.Claim("v1", trip2550))
	assert.False(t, r.Claim("v2", trip2550))

	advance(time.Hour)
	assert.True(t, r.Claim("v2", trip2550), "claim is free three hours after creation")
	assert.False(t, r.Claim("v1", trip2550))
}

func TestTripClaimConcurrentSingleWinner(t *testing.T) {
	r := NewTripClaimRegistry(DefaultClaimTTL)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if r.Claim(fmt.Sprintf("1/%d", id), trip2550) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, r.Len())
}
