// Package hfp models the two input telemetry kinds consumed by the processor:
// high-frequency position/event reports and automatic passenger counts.
package hfp

import (
	"fmt"
	"strconv"
	"strings"
)

type EventType string

const (
	EventVP   EventType = "VP"
	EventDUE  EventType = "DUE"
	EventARR  EventType = "ARR"
	EventARS  EventType = "ARS"
	EventPDE  EventType = "PDE"
	EventDEP  EventType = "DEP"
	EventPAS  EventType = "PAS"
	EventWAIT EventType = "WAIT"
	EventDOO  EventType = "DOO"
	EventDOC  EventType = "DOC"
)

type TransportMode string

const (
	ModeBus   TransportMode = "bus"
	ModeTram  TransportMode = "tram"
	ModeTrain TransportMode = "train"
	ModeMetro TransportMode = "metro"
	ModeFerry TransportMode = "ferry"
	ModeUBus  TransportMode = "ubus"
	ModeRobot TransportMode = "robot"
)

type JourneyType string

const (
	JourneyJourney JourneyType = "journey"
	JourneyDeadrun JourneyType = "deadrun"
	JourneySignoff JourneyType = "signoff"
)

type TemporalType string

const (
	TemporalOngoing  TemporalType = "ongoing"
	TemporalUpcoming TemporalType = "upcoming"
)

// EndOfLine is the next-stop value reported after the final stop.
const EndOfLine = "EOL"

// TripKey identifies one scheduled trip instance.
type TripKey struct {
	RouteID      string
	OperatingDay string
	StartTime    string
	DirectionID  string
}

func (k TripKey) String() string {
	return k.RouteID + "/" + k.OperatingDay + "/" + k.StartTime + "/" + k.DirectionID
}

// UniqueVehicleID formats an operator and vehicle number the way HFP topics do.
func UniqueVehicleID(operatorID, vehicleNumber int) string {
	return fmt.Sprintf("%d/%d", operatorID, vehicleNumber)
}

// ParseUniqueVehicleID splits an "oper/veh" id into its numeric parts.
func ParseUniqueVehicleID(id string) (operatorID, vehicleNumber int, err error) {
	oper, veh, ok := strings.Cut(id, "/")
	if !ok {
		return 0, 0, fmt.Errorf("uniqueVehicleId %q: want oper/veh", id)
	}
	if operatorID, err = strconv.Atoi(oper); err != nil {
		return 0, 0, fmt.Errorf("uniqueVehicleId %q: operator: %w", id, err)
	}
	if vehicleNumber, err = strconv.Atoi(veh); err != nil {
		return 0, 0, fmt.Errorf("uniqueVehicleId %q: vehicle: %w", id, err)
	}
	return operatorID, vehicleNumber, nil
}

// Topic carries the routing attributes of an HFP report.
type Topic struct {
	JourneyType     JourneyType   `json:"journeyType"`
	TemporalType    TemporalType  `json:"temporalType"`
	EventType       EventType     `json:"eventType"`
	TransportMode   TransportMode `json:"transportMode"`
	OperatorID      int           `json:"operatorId"`
	VehicleNumber   int           `json:"vehicleNumber"`
	UniqueVehicleID string        `json:"uniqueVehicleId"`
	RouteID         string        `json:"routeId"`
	DirectionID     int           `json:"directionId"`
	StartTime       string        `json:"startTime"`
	NextStop        string        `json:"nextStop"`
}

// Payload carries the measured values of an HFP report. Pointer fields are
// optional and nil when the vehicle did not report them.
type Payload struct {
	Tsi   int64    `json:"tsi"`
	Lat   *float64 `json:"lat,omitempty"`
	Long  *float64 `json:"long,omitempty"`
	Spd   *float64 `json:"spd,omitempty"`
	Hdg   *int     `json:"hdg,omitempty"`
	Odo   *float64 `json:"odo,omitempty"`
	Oday  string   `json:"oday"`
	Start string   `json:"start"`
	Route string   `json:"route"`
	Dir   string   `json:"dir"`
	Stop  *string  `json:"stop,omitempty"`
	Occu  *int     `json:"occu,omitempty"`
	Dl    *int     `json:"dl,omitempty"`
	Label *string  `json:"label,omitempty"`
}

// VehicleEvent is one decoded HFP report. It is not modified after decoding.
type VehicleEvent struct {
	Topic   Topic   `json:"topic"`
	Payload Payload `json:"payload"`
}

func (e *VehicleEvent) VehicleID() string { return e.Topic.UniqueVehicleID }

// TripKey is the key of the trip claim registry.
func (e *VehicleEvent) TripKey() TripKey {
	return TripKey{
		RouteID:      e.Topic.RouteID,
		OperatingDay: e.Payload.Oday,
		StartTime:    e.Topic.StartTime,
		DirectionID:  e.Payload.Dir,
	}
}

// PassengerTripKey is the key under which passenger counts for the same
// trip are stored.
func (e *VehicleEvent) PassengerTripKey() TripKey {
	return TripKey{
		RouteID:      e.Payload.Route,
		OperatingDay: e.Payload.Oday,
		StartTime:    e.Payload.Start,
		DirectionID:  e.Payload.Dir,
	}
}

// HasPosition reports whether the event carries a GPS fix.
func (e *VehicleEvent) HasPosition() bool {
	return e.Payload.Lat != nil && e.Payload.Long != nil
}

// NearStop returns the stop id the vehicle reports being near, if any.
func (e *VehicleEvent) NearStop() (string, bool) {
	if e.Payload.Stop == nil || *e.Payload.Stop == "" {
		return "", false
	}
	return *e.Payload.Stop, true
}

// ScheduleDeviation returns the delay in seconds (positive when late).
func (e *VehicleEvent) ScheduleDeviation() (int, bool) {
	if e.Payload.Dl == nil {
		return 0, false
	}
	return -*e.Payload.Dl, true
}

type VehicleCounts struct {
	VehicleLoad      int     `json:"vehicleLoad"`
	VehicleLoadRatio float64 `json:"vehicleLoadRatio"`
}

type PassengerPayload struct {
	Oper          int           `json:"oper"`
	Veh           int           `json:"veh"`
	Route         string        `json:"route"`
	Oday          string        `json:"oday"`
	Start         string        `json:"start"`
	Dir           string        `json:"dir"`
	VehicleCounts VehicleCounts `json:"vehicleCounts"`
}

// PassengerCount is one decoded passenger-count report.
type PassengerCount struct {
	Payload PassengerPayload `json:"payload"`
}

func (p *PassengerCount) VehicleID() string {
	return UniqueVehicleID(p.Payload.Oper, p.Payload.Veh)
}

func (p *PassengerCount) TripKey() TripKey {
	return TripKey{
		RouteID:      p.Payload.Route,
		OperatingDay: p.Payload.Oday,
		StartTime:    p.Payload.Start,
		DirectionID:  p.Payload.Dir,
	}
}

// Message is the tagged union of input kinds. Implementations are
// *VehicleEvent and *PassengerCount.
type Message interface {
	VehicleID() string
	isMessage()
}

func (*VehicleEvent) isMessage()   {}
func (*PassengerCount) isMessage() {}
