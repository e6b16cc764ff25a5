// Package gtfsrt turns validated HFP events into GTFS-RT vehicle positions.
package gtfsrt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gtfsrtpb "github.com/jamespfennell/gtfs/proto"
	"google.golang.org/protobuf/proto"

	"hfp-vehicleposition/internal/hfp"
	"hfp-vehicleposition/internal/stops"
	"hfp-vehicleposition/internal/vehicle"
)

// ErrNoLocation is returned when neither a GPS fix nor a known stop location
// is available for the event.
var ErrNoLocation = errors.New("no vehicle location")

// Input is everything known about an event when its position is built.
type Input struct {
	Event      *hfp.VehicleEvent
	StopStatus *vehicle.StopStatus
	Occupancy  *gtfsrtpb.VehiclePosition_OccupancyStatus
	// Added marks a trip reported by a vehicle that did not win the trip claim.
	Added bool
}

// Builder assembles vehicle positions. It holds no mutable state.
type Builder struct {
	loc   *time.Location
	stops stops.Locator
}

// NewBuilder creates a builder computing start times in loc. locator may be
// nil, in which case events without a GPS fix are never positioned.
func NewBuilder(loc *time.Location, locator stops.Locator) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{loc: loc, stops: locator}
}

// Build returns the vehicle position for in.
func (b *Builder) Build(in Input) (*gtfsrtpb.VehiclePosition, error) {
	ev := in.Event
	pos, err := b.position(ev, in.StopStatus)
	if err != nil {
		return nil, err
	}

	routeID, err := NormalizeRouteID(ev.Topic.RouteID)
	if err != nil {
		return nil, err
	}
	startTime, err := StartTime(ev.Payload.Tsi, ev.Payload.Oday, ev.Payload.Start, b.loc)
	if err != nil {
		return nil, err
	}

	relationship := gtfsrtpb.TripDescriptor_SCHEDULED
	if in.Added {
		relationship = gtfsrtpb.TripDescriptor_ADDED
	}
	trip := &gtfsrtpb.TripDescriptor{
		RouteId:              proto.String(routeID),
		StartDate:            proto.String(strings.ReplaceAll(ev.Payload.Oday, "-", "")),
		StartTime:            proto.String(startTime),
		ScheduleRelationship: relationship.Enum(),
	}
	if ev.Topic.DirectionID < 1 {
		return nil, fmt.Errorf("invalid direction %d", ev.Topic.DirectionID)
	}
	trip.DirectionId = proto.Uint32(uint32(ev.Topic.DirectionID - 1))

	vd := &gtfsrtpb.VehicleDescriptor{Id: proto.String(ev.VehicleID())}
	if ev.Payload.Label != nil {
		vd.Label = proto.String(*ev.Payload.Label)
	}

	vp := &gtfsrtpb.VehiclePosition{
		Trip:      trip,
		Vehicle:   vd,
		Position:  pos,
		Timestamp: proto.Uint64(uint64(ev.Payload.Tsi)),
	}
	if in.StopStatus != nil {
		vp.CurrentStatus = in.StopStatus.Phase.Enum()
		vp.StopId = proto.String(in.StopStatus.StopID)
	}
	if in.Occupancy != nil {
		vp.OccupancyStatus = in.Occupancy.Enum()
	}
	return vp, nil
}

func (b *Builder) position(ev *hfp.VehicleEvent, status *vehicle.StopStatus) (*gtfsrtpb.Position, error) {
	p := ev.Payload
	var pos *gtfsrtpb.Position
	switch {
	case ev.HasPosition():
		pos = &gtfsrtpb.Position{
			Latitude:  proto.Float32(float32(*p.Lat)),
			Longitude: proto.Float32(float32(*p.Long)),
		}
	case b.stops != nil && status != nil && status.Phase == gtfsrtpb.VehiclePosition_STOPPED_AT:
		loc, ok := b.stops.Location(status.StopID)
		if !ok {
			return nil, ErrNoLocation
		}
		pos = &gtfsrtpb.Position{
			Latitude:  proto.Float32(float32(loc.Lat)),
			Longitude: proto.Float32(float32(loc.Lon)),
		}
	default:
		return nil, ErrNoLocation
	}

	if p.Spd != nil {
		pos.Speed = proto.Float32(float32(*p.Spd))
	}
	if p.Hdg != nil {
		pos.Bearing = proto.Float32(float32(*p.Hdg))
	}
	if p.Odo != nil {
		pos.Odometer = proto.Float64(*p.Odo)
	}
	return pos, nil
}
