package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"hfp-vehicleposition/internal/hfp"
)

type Config struct {
	NATSURL             string
	NATSStreamName      string
	InputSubjects       []string
	ConsumerName        string
	OutputSubjectPrefix string
	LogNATSSubjects     bool
	MetricsAddr         string
	LogLevel            string
	LogFormat           string
	Location            *time.Location

	MaxTimeDifference             time.Duration
	MaxDelayAllowed               time.Duration
	MaxDelayEnabled               bool
	AddedTripEnabledModes         []hfp.TransportMode
	StopStatusWithoutEventsModes  []hfp.TransportMode
	PassengerCountEnabledVehicles []string

	TripClaimTTL            time.Duration
	PassengerLoadTTL        time.Duration
	PassengerLoadMaxEntries int
	StopStatusMaxVehicles   int
	Workers                 int
	BatchWindow             time.Duration

	ProcessorConfigFile string
	DatabaseURL         string
	City                string
	GTFSStaticPath      string

	Tables *Tables
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	cfg.NATSStreamName = getenvDefault("NATS_STREAM_NAME", "HFP")
	cfg.InputSubjects = splitList(getenvDefault("INPUT_SUBJECTS", "hfp.>,passengercount.>"))
	if len(cfg.InputSubjects) == 0 {
		return nil, errors.New("INPUT_SUBJECTS must list at least one subject")
	}
	cfg.ConsumerName = getenvDefault("CONSUMER_NAME", "vehicleposition-processor")
	cfg.OutputSubjectPrefix = strings.TrimSuffix(getenvDefault("OUTPUT_SUBJECT_PREFIX", "gtfsrt.vp"), ".")

	var err error
	if cfg.LogNATSSubjects, err = envBool("LOG_NATS_SUBJECTS", false); err != nil {
		return nil, err
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q", cfg.LogLevel)
	}
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "json"))
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", cfg.LogFormat)
	}

	// Agency time zone used for trip start times
	loc, err := time.LoadLocation(getenvDefault("TZ", "Europe/Helsinki"))
	if err != nil {
		return nil, fmt.Errorf("invalid TZ: %v", err)
	}
	cfg.Location = loc

	if cfg.MaxTimeDifference, err = envSeconds("MAX_TIME_DIFFERENCE_SEC", 5, 0); err != nil {
		return nil, err
	}
	if cfg.MaxDelayAllowed, err = envSeconds("MAX_DELAY_ALLOWED_SEC", 1800, 1); err != nil {
		return nil, err
	}
	if cfg.MaxDelayEnabled, err = envBool("MAX_DELAY_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.AddedTripEnabledModes, err = envModes("ADDED_TRIP_ENABLED_MODES", "bus"); err != nil {
		return nil, err
	}
	if cfg.StopStatusWithoutEventsModes, err = envModes("STOP_STATUS_WITHOUT_EVENTS_MODES", "metro,ferry,ubus,robot"); err != nil {
		return nil, err
	}
	cfg.PassengerCountEnabledVehicles = splitList(os.Getenv("PASSENGER_COUNT_ENABLED_VEHICLES"))
	for _, id := range cfg.PassengerCountEnabledVehicles {
		if !isVehicleID(id) {
			return nil, fmt.Errorf("invalid PASSENGER_COUNT_ENABLED_VEHICLES entry: %q", id)
		}
	}

	if cfg.TripClaimTTL, err = envDuration("TRIP_CLAIM_TTL", 3*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PassengerLoadTTL, err = envDuration("PASSENGER_LOAD_TTL", 3*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PassengerLoadMaxEntries, err = envInt("PASSENGER_LOAD_MAX_ENTRIES", 10000, 1); err != nil {
		return nil, err
	}
	if cfg.StopStatusMaxVehicles, err = envInt("STOP_STATUS_MAX_VEHICLES", 20000, 1); err != nil {
		return nil, err
	}
	if cfg.Workers, err = envInt("WORKERS", 16, 1); err != nil {
		return nil, err
	}
	ms, err := envInt("BATCH_WINDOW_MS", 0, 0)
	if err != nil {
		return nil, err
	}
	cfg.BatchWindow = time.Duration(ms) * time.Millisecond

	cfg.ProcessorConfigFile = getenvDefault("PROCESSOR_CONFIG_FILE", "config.yml")
	cfg.Tables, err = LoadTables(cfg.ProcessorConfigFile)
	if err != nil {
		return nil, err
	}

	// Optional GTFS database for fallback stop coordinates
	cfg.DatabaseURL = firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN"))
	if cfg.DatabaseURL == "" && os.Getenv("PGHOST") != "" {
		cfg.DatabaseURL = dsnFromPGEnv()
	}
	// City name for resolving the latest imported GTFS database
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))
	if cfg.City != "" && cfg.DatabaseURL == "" {
		return nil, errors.New("CITY requires DATABASE_URL or PGHOST")
	}
	cfg.GTFSStaticPath = os.Getenv("GTFS_STATIC_PATH")

	return cfg, nil
}

func dsnFromPGEnv() string {
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := getenvDefault("PGDATABASE", "postgres")
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envBool(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s: %q", k, v)
}

func envInt(k string, def, min int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < min {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func envSeconds(k string, def, min int) (time.Duration, error) {
	n, err := envInt(k, def, min)
	return time.Duration(n) * time.Second, err
}

func envDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return d, nil
}

var knownModes = map[hfp.TransportMode]struct{}{
	hfp.ModeBus: {}, hfp.ModeTram: {}, hfp.ModeTrain: {}, hfp.ModeMetro: {},
	hfp.ModeFerry: {}, hfp.ModeUBus: {}, hfp.ModeRobot: {},
}

// envModes parses a comma separated list of transport modes. An explicitly
// empty value is not distinguishable from unset, so "none" clears the list.
func envModes(k, def string) ([]hfp.TransportMode, error) {
	v := getenvDefault(k, def)
	if strings.EqualFold(strings.TrimSpace(v), "none") {
		return nil, nil
	}
	var modes []hfp.TransportMode
	for _, s := range splitList(v) {
		m := hfp.TransportMode(strings.ToLower(s))
		if _, ok := knownModes[m]; !ok {
			return nil, fmt.Errorf("invalid %s entry: %q", k, s)
		}
		modes = append(modes, m)
	}
	return modes, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// isVehicleID reports whether s has the "oper/veh" form.
func isVehicleID(s string) bool {
	oper, veh, ok := strings.Cut(s, "/")
	if !ok {
		return false
	}
	if _, err := strconv.Atoi(oper); err != nil {
		return false
	}
	_, err := strconv.Atoi(veh)
	return err == nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
