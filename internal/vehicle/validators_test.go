package vehicle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hfp-vehicleposition/internal/hfp"
)

func timestampEvent(vehicleID string, tsi int64) *hfp.VehicleEvent {
	return &hfp.VehicleEvent{
		Topic:   hfp.Topic{UniqueVehicleID: vehicleID},
		Payload: hfp.Payload{Tsi: tsi},
	}
}

func TestTimestampInFutureIsIgnored(t *testing.T) {
	v := NewVehicleTimestampValidator(5*time.Second, nil)

	assert.Equal(t, TimestampInFuture, v.Check(timestampEvent("1/1", 10), 3000))
	_, ok := v.Last("1/1")
	assert.False(t, ok, "rejected event must not touch state")
}

func TestTimestampOlderThanPreviousIsIgnored(t *testing.T) {
	v := NewVehicleTimestampValidator(5*time.Second, nil)

	assert.True(t, v.Validate(timestampEvent("1/1", 10), 10500))
	assert.Equal(t, TimestampStale, v.Check(timestampEvent("1/1", 9), 11500))

	last, _ := v.Last("1/1")
	assert.Equal(t, int64(10), last)

	assert.True(t, v.Validate(timestampEvent("1/1", 12), 12500))
	assert.True(t, v.Validate(timestampEvent("1/1", 12), 12500), "equal timestamp is accepted")
}

func TestTimestampIncreasingAllAccepted(t *testing.T) {
	v := NewVehicleTimestampValidator(5*time.Second, nil)
	for ts := int64(100); ts < 110; ts++ {
		assert.True(t, v.Validate(timestampEvent("1/1", ts), ts*1000))
	}
	// other vehicles are independent
	assert.True(t, v.Validate(timestampEvent("1/2", 50), 50000))
}

func TestDelayValidator(t *testing.T) {
	delayed := func(delay int) *hfp.VehicleEvent {
		dl := -delay
		return &hfp.VehicleEvent{Payload: hfp.Payload{Dl: &dl}}
	}

	disabled := NewVehicleDelayValidator(false, time.Minute)
	assert.True(t, disabled.Validate(delayed(3600)))

	v := NewVehicleDelayValidator(true, time.Minute)
	assert.True(t, v.Validate(delayed(59)))
	assert.False(t, v.Validate(delayed(60)))
	assert.True(t, v.Validate(delayed(-120)), "running ahead of schedule")
	assert.True(t, v.Validate(&hfp.VehicleEvent{}), "no deviation reported")
}
