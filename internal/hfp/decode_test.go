package hfp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVehicleEvent(t *testing.T) {
	body := []byte(`{
		"topic": {"journeyType":"journey","temporalType":"ongoing","eventType":"DUE",
		          "transportMode":"bus","operatorId":22,"vehicleNumber":818,
		          "routeId":"2550","directionId":1,"startTime":"09:16","nextStop":"1201129"},
		"payload": {"tsi":1566022560,"lat":60.17,"long":24.94,"oday":"2019-08-17",
		            "start":"09:16","route":"2550","dir":"1","stop":"1201129","dl":-45}
	}`)

	msg, err := Decode(SchemaHfpData, body)
	require.NoError(t, err)

	ev, ok := msg.(*VehicleEvent)
	require.True(t, ok)
	assert.Equal(t, "22/818", ev.VehicleID(), "unique vehicle id derived from operator and number")
	assert.Equal(t, EventDUE, ev.Topic.EventType)
	assert.True(t, ev.HasPosition())
	assert.Nil(t, ev.Payload.Spd)
	assert.Nil(t, ev.Payload.Occu)

	near, ok := ev.NearStop()
	assert.True(t, ok)
	assert.Equal(t, "1201129", near)

	delay, ok := ev.ScheduleDeviation()
	assert.True(t, ok)
	assert.Equal(t, 45, delay)

	assert.Equal(t, TripKey{RouteID: "2550", OperatingDay: "2019-08-17", StartTime: "09:16", DirectionID: "1"}, ev.TripKey())
}

func TestDecodeVehicleEventWithoutFix(t *testing.T) {
	msg, err := Decode(SchemaHfpData, []byte(`{"topic":{"uniqueVehicleId":"1/1"},"payload":{"tsi":1}}`))
	require.NoError(t, err)
	ev := msg.(*VehicleEvent)
	assert.False(t, ev.HasPosition())
	_, ok := ev.NearStop()
	assert.False(t, ok)
	_, ok = ev.ScheduleDeviation()
	assert.False(t, ok)
}

func TestDecodeFillsVehicleNumberFromUniqueID(t *testing.T) {
	msg, err := Decode(SchemaHfpData, []byte(`{"topic":{"uniqueVehicleId":"22/818","eventType":"VP"},"payload":{"tsi":1}}`))
	require.NoError(t, err)
	ev := msg.(*VehicleEvent)
	assert.Equal(t, 22, ev.Topic.OperatorID)
	assert.Equal(t, 818, ev.Topic.VehicleNumber)
	assert.Equal(t, UniqueVehicleID(ev.Topic.OperatorID, ev.Topic.VehicleNumber), ev.VehicleID())
}

func TestParseUniqueVehicleID(t *testing.T) {
	oper, veh, err := ParseUniqueVehicleID("6/1203")
	require.NoError(t, err)
	assert.Equal(t, 6, oper)
	assert.Equal(t, 1203, veh)

	for _, id := range []string{"", "22", "a/1", "22/b", "22/"} {
		_, _, err := ParseUniqueVehicleID(id)
		assert.Error(t, err, id)
	}
}

func TestDecodePassengerCount(t *testing.T) {
	body := []byte(`{"payload":{"oper":22,"veh":818,"route":"2550","oday":"2019-08-17","start":"09:16","dir":"1",
		"vehicleCounts":{"vehicleLoad":12,"vehicleLoadRatio":0.15}}}`)

	msg, err := Decode(SchemaPassengerCount, body)
	require.NoError(t, err)

	pc, ok := msg.(*PassengerCount)
	require.True(t, ok)
	assert.Equal(t, "22/818", pc.VehicleID())
	assert.Equal(t, 12, pc.Payload.VehicleCounts.VehicleLoad)
	assert.InDelta(t, 0.15, pc.Payload.VehicleCounts.VehicleLoadRatio, 1e-9)
	assert.Equal(t, TripKey{RouteID: "2550", OperatingDay: "2019-08-17", StartTime: "09:16", DirectionID: "1"}, pc.TripKey())
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		body   string
		is     error
	}{
		{name: "unknown schema", schema: "GTFS_TripUpdate", body: `{}`, is: ErrUnknownSchema},
		{name: "missing vehicle", schema: SchemaHfpData, body: `{"topic":{},"payload":{}}`, is: ErrMissingField},
		{name: "broken json", schema: SchemaPassengerCount, body: `{"payload":`},
		{name: "malformed vehicle id", schema: SchemaHfpData, body: `{"topic":{"uniqueVehicleId":"22-818"},"payload":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.schema, []byte(tt.body))
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}
