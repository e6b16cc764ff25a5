package vehicle

import (
	"log/slog"
	"time"

	"hfp-vehicleposition/internal/cache"
	"hfp-vehicleposition/internal/hfp"
)

// TimestampVerdict is the outcome of a timestamp check.
type TimestampVerdict int

const (
	TimestampAccepted TimestampVerdict = iota
	TimestampInFuture
	TimestampStale
)

// DefaultTimestampStateTTL bounds how long the last timestamp of a silent
// vehicle is remembered.
const DefaultTimestampStateTTL = 3 * time.Hour

// VehicleTimestampValidator lets through only events that are not older than
// the newest event already accepted for the same vehicle.
type VehicleTimestampValidator struct {
	maxTimeDifference int64
	latest            *cache.Map[string, int64]
	logger            *slog.Logger
}

func NewVehicleTimestampValidator(maxTimeDifference time.Duration, logger *slog.Logger, opts ...cache.Option) *VehicleTimestampValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &VehicleTimestampValidator{
		maxTimeDifference: int64(maxTimeDifference / time.Second),
		latest:            cache.New[string, int64](DefaultTimestampStateTTL, cache.StringHash, opts...),
		logger:            logger,
	}
}

// Check validates ev against the receive time (epoch milliseconds). State
// is only updated when the event is accepted.
func (v *VehicleTimestampValidator) Check(ev *hfp.VehicleEvent, receiveTimeMs int64) TimestampVerdict {
	ts := ev.Payload.Tsi
	diff := ts - receiveTimeMs/1000
	if diff > v.maxTimeDifference {
		v.logger.Warn("vehicle timestamp in future",
			"vehicle", ev.VehicleID(), "seconds_ahead", diff, "tsi", ts, "received", receiveTimeMs/1000)
		return TimestampInFuture
	}

	accepted := false
	v.latest.Compute(ev.VehicleID(), func(last int64, present bool) (int64, bool) {
		if !present || ts >= last {
			accepted = true
			return ts, true
		}
		return last, false
	})
	if !accepted {
		return TimestampStale
	}
	return TimestampAccepted
}

// Validate is Check reduced to accept/reject.
func (v *VehicleTimestampValidator) Validate(ev *hfp.VehicleEvent, receiveTimeMs int64) bool {
	return v.Check(ev, receiveTimeMs) == TimestampAccepted
}

// Last returns the newest accepted timestamp of a vehicle.
func (v *VehicleTimestampValidator) Last(vehicleID string) (int64, bool) {
	return v.latest.Get(vehicleID)
}

// VehicleDelayValidator rejects events of vehicles running too far behind schedule.
type VehicleDelayValidator struct {
	enabled  bool
	maxDelay int
}

func NewVehicleDelayValidator(enabled bool, maxDelay time.Duration) *VehicleDelayValidator {
	return &VehicleDelayValidator{enabled: enabled, maxDelay: int(maxDelay / time.Second)}
}

// Validate reports whether ev may be published. Events without a reported
// deviation always pass.
func (v *VehicleDelayValidator) Validate(ev *hfp.VehicleEvent) bool {
	if !v.enabled {
		return true
	}
	delay, ok := ev.ScheduleDeviation()
	if !ok {
		return true
	}
	return delay < v.maxDelay
}
