package vehicle

import (
	"time"

	"github.com/bluele/gcache"
	gtfsrtpb "github.com/jamespfennell/gtfs/proto"

	"hfp-vehicleposition/internal/hfp"
)

// StopStatus is the reported relation of a vehicle to a stop.
type StopStatus struct {
	StopID string
	Phase  gtfsrtpb.VehiclePosition_VehicleStopStatus
}

func InTransitTo(stopID string) StopStatus {
	return StopStatus{StopID: stopID, Phase: gtfsrtpb.VehiclePosition_IN_TRANSIT_TO}
}

func IncomingAt(stopID string) StopStatus {
	return StopStatus{StopID: stopID, Phase: gtfsrtpb.VehiclePosition_INCOMING_AT}
}

func StoppedAt(stopID string) StopStatus {
	return StopStatus{StopID: stopID, Phase: gtfsrtpb.VehiclePosition_STOPPED_AT}
}

// NextStopStatus computes the stop status following prev (hasPrev=false means
// no status) for ev. modesWithoutEvents lists transport modes that never send
// DUE/ARS/PDE events. The second result is false when the vehicle has no
// status to report.
func NextStopStatus(prev StopStatus, hasPrev bool, ev *hfp.VehicleEvent, modesWithoutEvents map[hfp.TransportMode]struct{}) (StopStatus, bool) {
	next := ev.Topic.NextStop
	if next == "" || next == hfp.EndOfLine {
		return StopStatus{}, false
	}
	near, hasNear := ev.NearStop()

	if _, ok := modesWithoutEvents[ev.Topic.TransportMode]; ok {
		if hasNear && near == next {
			return StoppedAt(next), true
		}
		return InTransitTo(next), true
	}

	switch {
	case !hasPrev, ev.Topic.EventType == hfp.EventPDE, ev.Topic.EventType == hfp.EventPAS:
		return InTransitTo(next), true
	case ev.Topic.EventType == hfp.EventDUE:
		return IncomingAt(next), true
	case ev.Topic.EventType == hfp.EventARS:
		return StoppedAt(next), true
	}

	switch prev.Phase {
	case gtfsrtpb.VehiclePosition_INCOMING_AT:
		// repeated position reports while approaching
		if next == prev.StopID || (hasNear && near == prev.StopID) {
			return prev, true
		}
	case gtfsrtpb.VehiclePosition_STOPPED_AT:
		if hasNear && near == next {
			return prev, true
		}
		return InTransitTo(next), true
	}
	return InTransitTo(next), true
}

const (
	DefaultStopStatusCapacity = 20000
	DefaultStopStatusIdle     = 3 * time.Hour
)

// StopStatusTracker keeps the current stop status of every vehicle.
// Events of one vehicle must not be applied concurrently.
type StopStatusTracker struct {
	store              gcache.Cache
	modesWithoutEvents map[hfp.TransportMode]struct{}
}

// NewStopStatusTracker creates a tracker holding at most capacity vehicles.
// Vehicles not heard from for idle are forgotten.
func NewStopStatusTracker(capacity int, idle time.Duration, modesWithoutEvents []hfp.TransportMode) *StopStatusTracker {
	modes := make(map[hfp.TransportMode]struct{}, len(modesWithoutEvents))
	for _, m := range modesWithoutEvents {
		modes[m] = struct{}{}
	}
	b := gcache.New(capacity).LRU()
	if idle > 0 {
		b = b.Expiration(idle)
	}
	return &StopStatusTracker{store: b.Build(), modesWithoutEvents: modes}
}

// Update applies ev to the vehicle's state and returns the new status.
func (t *StopStatusTracker) Update(ev *hfp.VehicleEvent) (StopStatus, bool) {
	id := ev.VehicleID()
	prev, hasPrev := t.Get(id)
	next, ok := NextStopStatus(prev, hasPrev, ev, t.modesWithoutEvents)
	if !ok {
		t.store.Remove(id)
		return StopStatus{}, false
	}
	_ = t.store.Set(id, next)
	return next, true
}

// Get returns the stored status of a vehicle.
func (t *StopStatusTracker) Get(vehicleID string) (StopStatus, bool) {
	v, err := t.store.Get(vehicleID)
	if err != nil {
		return StopStatus{}, false
	}
	s, ok := v.(StopStatus)
	return s, ok
}

// Len reports the number of tracked vehicles.
func (t *StopStatusTracker) Len() int { return t.store.Len(true) }
