package gtfsrt

import (
	"strconv"
	"strings"

	gtfsrtpb "github.com/jamespfennell/gtfs/proto"
	"google.golang.org/protobuf/proto"
)

const (
	// SchemaVehiclePosition tags published messages.
	SchemaVehiclePosition = "GTFS_VehiclePosition"

	feedVersion = "2.0"
)

func EntityID(vehicleID string) string { return "vehicle_position_" + vehicleID }

// NewFeedMessage wraps a single vehicle position in a differential feed.
func NewFeedMessage(entityID string, vp *gtfsrtpb.VehiclePosition, timestamp uint64) *gtfsrtpb.FeedMessage {
	return &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String(feedVersion),
			Incrementality:      gtfsrtpb.FeedHeader_DIFFERENTIAL.Enum(),
			Timestamp:           proto.Uint64(timestamp),
		},
		Entity: []*gtfsrtpb.FeedEntity{{
			Id:      proto.String(entityID),
			Vehicle: vp,
		}},
	}
}

// Encode serializes msg. Equal messages always encode to equal bytes.
func Encode(msg *gtfsrtpb.FeedMessage) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(msg)
}

// TopicSuffix is the routing key of a vehicle position:
// route/startDate/startTime/direction/status/stop.
func TopicSuffix(vp *gtfsrtpb.VehiclePosition) string {
	trip := vp.GetTrip()
	return strings.Join([]string{
		trip.GetRouteId(),
		trip.GetStartDate(),
		trip.GetStartTime(),
		strconv.FormatUint(uint64(trip.GetDirectionId()), 10),
		vp.GetCurrentStatus().String(),
		vp.GetStopId(),
	}, "/")
}
