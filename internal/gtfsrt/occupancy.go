package gtfsrt

import (
	"errors"
	"fmt"
	"sort"

	gtfsrtpb "github.com/jamespfennell/gtfs/proto"

	"hfp-vehicleposition/internal/hfp"
)

// Threshold maps values strictly above Breakpoint (up to the next breakpoint)
// to Status.
type Threshold struct {
	Breakpoint float64
	Status     gtfsrtpb.VehiclePosition_OccupancyStatus
}

// ThresholdTable is an immutable list of thresholds with strictly increasing
// breakpoints.
type ThresholdTable struct {
	thresholds []Threshold
}

var ErrInvalidThresholds = errors.New("invalid occupancy thresholds")

func NewThresholdTable(thresholds []Threshold) (ThresholdTable, error) {
	if len(thresholds) == 0 {
		return ThresholdTable{}, fmt.Errorf("%w: empty table", ErrInvalidThresholds)
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i].Breakpoint <= thresholds[i-1].Breakpoint {
			return ThresholdTable{}, fmt.Errorf("%w: breakpoint %v does not increase over %v",
				ErrInvalidThresholds, thresholds[i].Breakpoint, thresholds[i-1].Breakpoint)
		}
	}
	return ThresholdTable{thresholds: append([]Threshold(nil), thresholds...)}, nil
}

// Lookup returns the status of the greatest breakpoint strictly less than v.
func (t ThresholdTable) Lookup(v float64) (gtfsrtpb.VehiclePosition_OccupancyStatus, bool) {
	i := sort.Search(len(t.thresholds), func(i int) bool { return t.thresholds[i].Breakpoint >= v })
	if i == 0 {
		return 0, false
	}
	return t.thresholds[i-1].Status, true
}

func (t ThresholdTable) Len() int { return len(t.thresholds) }

// ParseOccupancyStatus resolves a GTFS-RT occupancy status name such as
// "MANY_SEATS_AVAILABLE".
func ParseOccupancyStatus(name string) (gtfsrtpb.VehiclePosition_OccupancyStatus, error) {
	v, ok := gtfsrtpb.VehiclePosition_OccupancyStatus_value[name]
	if !ok {
		return 0, fmt.Errorf("unknown occupancy status %q", name)
	}
	return gtfsrtpb.VehiclePosition_OccupancyStatus(v), nil
}

// DefaultPercentThresholds is the driver percentage table used when none is configured.
func DefaultPercentThresholds() []Threshold {
	return []Threshold{
		{0, gtfsrtpb.VehiclePosition_EMPTY},
		{5, gtfsrtpb.VehiclePosition_MANY_SEATS_AVAILABLE},
		{20, gtfsrtpb.VehiclePosition_FEW_SEATS_AVAILABLE},
		{50, gtfsrtpb.VehiclePosition_STANDING_ROOM_ONLY},
		{70, gtfsrtpb.VehiclePosition_CRUSHED_STANDING_ROOM_ONLY},
		{90, gtfsrtpb.VehiclePosition_FULL},
	}
}

// DefaultLoadRatioThresholds is the passenger load ratio table used when none is configured.
func DefaultLoadRatioThresholds() []Threshold {
	return []Threshold{
		{0, gtfsrtpb.VehiclePosition_EMPTY},
		{0.05, gtfsrtpb.VehiclePosition_MANY_SEATS_AVAILABLE},
		{0.2, gtfsrtpb.VehiclePosition_FEW_SEATS_AVAILABLE},
		{0.5, gtfsrtpb.VehiclePosition_STANDING_ROOM_ONLY},
		{0.7, gtfsrtpb.VehiclePosition_CRUSHED_STANDING_ROOM_ONLY},
		{0.9, gtfsrtpb.VehiclePosition_FULL},
	}
}

// Classifier derives the occupancy status of a vehicle from the driver set
// percentage and the latest passenger count.
type Classifier struct {
	percent   ThresholdTable
	loadRatio ThresholdTable
	allowed   map[string]struct{}
}

// NewClassifier builds a classifier. allowedVehicles holds "oper/veh" ids;
// an empty list enables classification for every vehicle.
func NewClassifier(percent, loadRatio ThresholdTable, allowedVehicles []string) *Classifier {
	c := &Classifier{percent: percent, loadRatio: loadRatio}
	if len(allowedVehicles) > 0 {
		c.allowed = make(map[string]struct{}, len(allowedVehicles))
		for _, id := range allowedVehicles {
			c.allowed[id] = struct{}{}
		}
	}
	return c
}

// Classify returns the occupancy status to report, if any. counts is the
// validated passenger count for the vehicle's trip, or nil.
func (c *Classifier) Classify(ev *hfp.VehicleEvent, counts *hfp.VehicleCounts) (gtfsrtpb.VehiclePosition_OccupancyStatus, bool) {
	if c.allowed != nil {
		if _, ok := c.allowed[hfp.UniqueVehicleID(ev.Topic.OperatorID, ev.Topic.VehicleNumber)]; !ok {
			return 0, false
		}
	}

	occu := ev.Payload.Occu
	// 100 means the driver marked the vehicle full.
	if occu != nil && *occu >= 100 {
		return gtfsrtpb.VehiclePosition_FULL, true
	}

	if counts != nil {
		if counts.VehicleLoad <= 0 || counts.VehicleLoadRatio <= 0 {
			return gtfsrtpb.VehiclePosition_EMPTY, true
		}
		return c.loadRatio.Lookup(counts.VehicleLoadRatio)
	}

	if occu != nil && *occu > 0 {
		return c.percent.Lookup(float64(*occu))
	}
	return 0, false
}
