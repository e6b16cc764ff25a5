package gtfsrt

import (
	"testing"

	gtfsrtpb "github.com/jamespfennell/gtfs/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"hfp-vehicleposition/internal/vehicle"
)

func TestFeedMessageRoundTrip(t *testing.T) {
	status := vehicle.StoppedAt("1201129")
	vp, err := NewBuilder(helsinki(t), nil).Build(Input{Event: positionEvent(), StopStatus: &status})
	require.NoError(t, err)

	b, err := Encode(NewFeedMessage(EntityID("1/1"), vp, 1562655000))
	require.NoError(t, err)

	var feed gtfsrtpb.FeedMessage
	require.NoError(t, proto.Unmarshal(b, &feed))
	assert.Equal(t, "2.0", feed.GetHeader().GetGtfsRealtimeVersion())
	assert.Equal(t, gtfsrtpb.FeedHeader_DIFFERENTIAL, feed.GetHeader().GetIncrementality())
	assert.Equal(t, uint64(1562655000), feed.GetHeader().GetTimestamp())
	require.Len(t, feed.GetEntity(), 1)
	assert.Equal(t, "vehicle_position_1/1", feed.GetEntity()[0].GetId())
	assert.True(t, proto.Equal(vp, feed.GetEntity()[0].GetVehicle()))
}

func TestTopicSuffix(t *testing.T) {
	b := NewBuilder(helsinki(t), nil)
	status := vehicle.StoppedAt("1201129")
	vp, err := b.Build(Input{Event: positionEvent(), StopStatus: &status})
	require.NoError(t, err)
	assert.Equal(t, "1999/20190709/09:30:00/0/STOPPED_AT/1201129", TopicSuffix(vp))

	vp, err = b.Build(Input{Event: positionEvent()})
	require.NoError(t, err)
	assert.Equal(t, "1999/20190709/09:30:00/0/IN_TRANSIT_TO/", TopicSuffix(vp))
}
