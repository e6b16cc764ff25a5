package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gtfsrtpb "github.com/jamespfennell/gtfs/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hfp-vehicleposition/internal/hfp"
)

func missingConfigFile(t *testing.T) {
	t.Setenv("PROCESSOR_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yml"))
	t.Setenv("TZ", "")
}

func TestLoadDefaults(t *testing.T) {
	missingConfigFile(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "HFP", cfg.NATSStreamName)
	assert.Equal(t, []string{"hfp.>", "passengercount.>"}, cfg.InputSubjects)
	assert.Equal(t, "gtfsrt.vp", cfg.OutputSubjectPrefix)
	assert.Equal(t, "Europe/Helsinki", cfg.Location.String())
	assert.Equal(t, 5*time.Second, cfg.MaxTimeDifference)
	assert.Equal(t, 1800*time.Second, cfg.MaxDelayAllowed)
	assert.False(t, cfg.MaxDelayEnabled)
	assert.Equal(t, []hfp.TransportMode{hfp.ModeBus}, cfg.AddedTripEnabledModes)
	assert.Equal(t, []hfp.TransportMode{hfp.ModeMetro, hfp.ModeFerry, hfp.ModeUBus, hfp.ModeRobot}, cfg.StopStatusWithoutEventsModes)
	assert.Empty(t, cfg.PassengerCountEnabledVehicles)
	assert.Equal(t, 3*time.Hour, cfg.TripClaimTTL)
	assert.Equal(t, 16, cfg.Workers)
	assert.Zero(t, cfg.BatchWindow)
	require.NotNil(t, cfg.Tables)
	assert.Equal(t, 6, cfg.Tables.Percent.Len())
}

func TestLoadOverrides(t *testing.T) {
	missingConfigFile(t)
	t.Setenv("MAX_DELAY_ENABLED", "yes")
	t.Setenv("MAX_DELAY_ALLOWED_SEC", "600")
	t.Setenv("ADDED_TRIP_ENABLED_MODES", "bus, tram")
	t.Setenv("STOP_STATUS_WITHOUT_EVENTS_MODES", "none")
	t.Setenv("PASSENGER_COUNT_ENABLED_VEHICLES", "22/818,60/1")
	t.Setenv("BATCH_WINDOW_MS", "500")
	t.Setenv("TRIP_CLAIM_TTL", "90m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.MaxDelayEnabled)
	assert.Equal(t, 10*time.Minute, cfg.MaxDelayAllowed)
	assert.Equal(t, []hfp.TransportMode{hfp.ModeBus, hfp.ModeTram}, cfg.AddedTripEnabledModes)
	assert.Empty(t, cfg.StopStatusWithoutEventsModes)
	assert.Equal(t, []string{"22/818", "60/1"}, cfg.PassengerCountEnabledVehicles)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchWindow)
	assert.Equal(t, 90*time.Minute, cfg.TripClaimTTL)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"WORKERS":                          "0",
		"MAX_TIME_DIFFERENCE_SEC":          "soon",
		"ADDED_TRIP_ENABLED_MODES":         "bus,hovercraft",
		"PASSENGER_COUNT_ENABLED_VEHICLES": "22_818",
		"LOG_LEVEL":                        "verbose",
		"TZ":                               "Mars/Olympus",
		"PASSENGER_LOAD_TTL":               "-1h",
		"LOG_NATS_SUBJECTS":                "maybe",
	}
	for k, v := range tests {
		t.Run(k, func(t *testing.T) {
			missingConfigFile(t)
			t.Setenv(k, v)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseTables(t *testing.T) {
	doc := `
occuLevels:
  - {occu: 0, status: EMPTY}
  - {occu: 50, status: STANDING_ROOM_ONLY}
occuLevelsVehicleLoadRatio:
  - {loadRatio: 0.0, status: EMPTY}
  - {loadRatio: 0.9, status: FULL}
fallbackStops:
  - {id: "1020602", location: [60.1688, 24.9314]}
  - {id: "1040601"}
`
	tables, err := ParseTables([]byte(doc))
	require.NoError(t, err)

	got, ok := tables.Percent.Lookup(60)
	require.True(t, ok)
	assert.Equal(t, gtfsrtpb.VehiclePosition_STANDING_ROOM_ONLY, got)
	got, ok = tables.LoadRatio.Lookup(0.95)
	require.True(t, ok)
	assert.Equal(t, gtfsrtpb.VehiclePosition_FULL, got)

	require.Len(t, tables.FallbackStops, 2)
	require.NotNil(t, tables.FallbackStops[0].Location)
	assert.InDelta(t, 24.9314, tables.FallbackStops[0].Location.Lon, 1e-9)
	assert.Nil(t, tables.FallbackStops[1].Location)
}

func TestParseTablesRejectsMalformed(t *testing.T) {
	docs := map[string]string{
		"unknown status":     "occuLevels:\n  - {occu: 10, status: CROWDED}\n",
		"not increasing":     "occuLevels:\n  - {occu: 50, status: EMPTY}\n  - {occu: 20, status: FULL}\n",
		"percent over 100":   "occuLevels:\n  - {occu: 120, status: FULL}\n",
		"stop without id":    "fallbackStops:\n  - {location: [1, 2]}\n",
		"half a coordinate":  "fallbackStops:\n  - {id: a, location: [1]}\n",
		"not yaml structure": "occuLevels: 5\n",
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTables([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadTablesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("occuLevels:\n  - {occu: 0, status: EMPTY}\n"), 0o600))

	tables, err := LoadTables(path)
	require.NoError(t, err)
	assert.Equal(t, 1, tables.Percent.Len())
	assert.Equal(t, 6, tables.LoadRatio.Len())
}
