// Package processor evaluates decoded HFP messages and publishes the
// resulting GTFS-RT vehicle positions.
package processor

import (
	"errors"
	"log/slog"
	"time"

	gtfsrtpb "github.com/jamespfennell/gtfs/proto"

	"hfp-vehicleposition/internal/cache"
	"hfp-vehicleposition/internal/gtfsrt"
	"hfp-vehicleposition/internal/hfp"
	"hfp-vehicleposition/internal/logging"
	"hfp-vehicleposition/internal/publisher"
	"hfp-vehicleposition/internal/stops"
	"hfp-vehicleposition/internal/vehicle"
)

// DropReason says why a message produced no vehicle position.
type DropReason string

const (
	Accepted            DropReason = ""
	DropIrrelevant      DropReason = "irrelevant"
	DropTripTaken       DropReason = "trip_taken"
	DropFutureTimestamp DropReason = "future_timestamp"
	DropStaleTimestamp  DropReason = "stale_timestamp"
	DropDelay           DropReason = "delay"
	DropNoLocation      DropReason = "no_location"
	DropInvalidRoute    DropReason = "invalid_route"
	DropMalformed       DropReason = "malformed"
	DropUnknownSchema   DropReason = "unknown_schema"
	DropSuperseded      DropReason = "superseded"
)

// DelayedThreshold is the age at which a published position counts as delayed.
const DelayedThreshold = 2 * time.Minute

type Metrics interface {
	MessageReceived(schema string)
	EventDropped(reason DropReason)
	MessageDelayed()
	ProcessObserve(d time.Duration)
}

type Publisher interface {
	PublishPosition(pos publisher.Position) error
}

type Config struct {
	Location *time.Location

	MaxTimeDifference time.Duration
	MaxDelayAllowed   time.Duration
	MaxDelayEnabled   bool

	AddedTripEnabledModes         []hfp.TransportMode
	StopStatusWithoutEventsModes  []hfp.TransportMode
	PassengerCountEnabledVehicles []string
	PercentThresholds             gtfsrt.ThresholdTable
	LoadRatioThresholds           gtfsrt.ThresholdTable

	TripClaimTTL            time.Duration
	PassengerLoadTTL        time.Duration
	PassengerLoadMaxEntries int
	StopStatusMaxVehicles   int

	// Stops positions vehicles stopped at a known stop without a GPS fix. Optional.
	Stops stops.Locator
	// Clock replaces time.Now for cache expiry and delay accounting.
	Clock func() time.Time
}

// Processor runs the per-event gate sequence. Events of one vehicle must not
// be handled concurrently; the Dispatcher guarantees that.
type Processor struct {
	claims     *vehicle.TripClaimRegistry
	loads      *vehicle.PassengerLoadCache
	timestamps *vehicle.VehicleTimestampValidator
	delays     *vehicle.VehicleDelayValidator
	stopStatus *vehicle.StopStatusTracker
	classifier *gtfsrt.Classifier
	builder    *gtfsrt.Builder

	addedTripModes map[hfp.TransportMode]struct{}

	pub     Publisher
	metrics Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(cfg Config, pub Publisher, m Metrics, logger *slog.Logger) (*Processor, error) {
	if pub == nil {
		return nil, errors.New("processor: publisher is required")
	}
	if cfg.PercentThresholds.Len() == 0 || cfg.LoadRatioThresholds.Len() == 0 {
		return nil, errors.New("processor: occupancy thresholds are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = NopMetrics{}
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	if cfg.TripClaimTTL <= 0 {
		cfg.TripClaimTTL = vehicle.DefaultClaimTTL
	}
	if cfg.PassengerLoadTTL <= 0 {
		cfg.PassengerLoadTTL = vehicle.DefaultPassengerLoadTTL
	}
	if cfg.PassengerLoadMaxEntries <= 0 {
		cfg.PassengerLoadMaxEntries = vehicle.DefaultPassengerLoadHighWater
	}
	if cfg.StopStatusMaxVehicles <= 0 {
		cfg.StopStatusMaxVehicles = vehicle.DefaultStopStatusCapacity
	}

	clock := cache.WithClock(now)

	p := &Processor{
		claims:         vehicle.NewTripClaimRegistry(cfg.TripClaimTTL, clock),
		loads:          vehicle.NewPassengerLoadCache(cfg.PassengerLoadTTL, cfg.PassengerLoadMaxEntries, clock),
		timestamps:     vehicle.NewVehicleTimestampValidator(cfg.MaxTimeDifference, logger, clock),
		delays:         vehicle.NewVehicleDelayValidator(cfg.MaxDelayEnabled, cfg.MaxDelayAllowed),
		stopStatus:     vehicle.NewStopStatusTracker(cfg.StopStatusMaxVehicles, vehicle.DefaultStopStatusIdle, cfg.StopStatusWithoutEventsModes),
		classifier:     gtfsrt.NewClassifier(cfg.PercentThresholds, cfg.LoadRatioThresholds, cfg.PassengerCountEnabledVehicles),
		builder:        gtfsrt.NewBuilder(cfg.Location, cfg.Stops),
		addedTripModes: make(map[hfp.TransportMode]struct{}, len(cfg.AddedTripEnabledModes)),
		pub:            pub,
		metrics:        m,
		logger:         logger,
		now:            now,
	}
	for _, mode := range cfg.AddedTripEnabledModes {
		p.addedTripModes[mode] = struct{}{}
	}

	if len(cfg.PassengerCountEnabledVehicles) == 0 {
		logger.Info("occupancy status enabled for all vehicles")
	} else {
		logger.Info("occupancy status enabled for listed vehicles", "vehicles", cfg.PassengerCountEnabledVehicles)
	}
	return p, nil
}

// Handle evaluates one decoded message. receiveTimeMs is the broker receive
// time in epoch milliseconds. The returned reason is Accepted when a
// position was published or a passenger count was stored.
func (p *Processor) Handle(msg hfp.Message, receiveTimeMs int64) DropReason {
	start := time.Now()
	defer func() { p.metrics.ProcessObserve(time.Since(start)) }()

	var reason DropReason
	switch m := msg.(type) {
	case *hfp.PassengerCount:
		p.loads.Put(m.VehicleID(), m.TripKey(), m.Payload.VehicleCounts)
	case *hfp.VehicleEvent:
		reason = p.handleEvent(m, receiveTimeMs)
	default:
		reason = DropUnknownSchema
	}
	if reason != Accepted {
		p.metrics.EventDropped(reason)
	}
	return reason
}

var relevantEvents = map[hfp.EventType]struct{}{
	hfp.EventVP:  {},
	hfp.EventDUE: {},
	hfp.EventPAS: {},
	hfp.EventARS: {},
	hfp.EventPDE: {},
}

func isRelevant(ev *hfp.VehicleEvent) bool {
	if ev.Topic.JourneyType != hfp.JourneyJourney || ev.Topic.TemporalType != hfp.TemporalOngoing {
		return false
	}
	_, ok := relevantEvents[ev.Topic.EventType]
	return ok
}

func (p *Processor) handleEvent(ev *hfp.VehicleEvent, receiveTimeMs int64) DropReason {
	vid := ev.VehicleID()
	if !isRelevant(ev) {
		p.logger.Debug("ignoring event", "vehicle", vid, "event", ev.Topic.EventType,
			"journey", ev.Topic.JourneyType, "temporal", ev.Topic.TemporalType)
		return DropIrrelevant
	}

	if _, err := gtfsrt.NormalizeRouteID(ev.Topic.RouteID); err != nil {
		p.logger.Warn("invalid route id", "vehicle", vid, "route", ev.Topic.RouteID)
		return DropInvalidRoute
	}

	trip := ev.TripKey()
	added := !p.claims.Claim(vid, trip)
	if added {
		if _, ok := p.addedTripModes[ev.Topic.TransportMode]; !ok {
			p.logger.Debug("trip already claimed by another vehicle", "vehicle", vid, "trip", trip.String())
			return DropTripTaken
		}
	}

	switch p.timestamps.Check(ev, receiveTimeMs) {
	case vehicle.TimestampInFuture:
		return DropFutureTimestamp
	case vehicle.TimestampStale:
		p.logger.Debug("stale vehicle timestamp", "vehicle", vid, "tsi", ev.Payload.Tsi)
		return DropStaleTimestamp
	}
	if !p.delays.Validate(ev) {
		p.logger.Debug("vehicle delay above limit", "vehicle", vid)
		return DropDelay
	}

	in := gtfsrt.Input{Event: ev, Added: added}
	if status, ok := p.stopStatus.Update(ev); ok {
		in.StopStatus = &status
	}

	counts := p.passengerCounts(ev)
	if occ, ok := p.classifier.Classify(ev, counts); ok {
		in.Occupancy = &occ
	}

	vp, err := p.builder.Build(in)
	switch {
	case errors.Is(err, gtfsrt.ErrNoLocation):
		return DropNoLocation
	case errors.Is(err, gtfsrt.ErrInvalidRouteID):
		p.logger.Warn("invalid route id", "vehicle", vid, "route", ev.Topic.RouteID)
		return DropInvalidRoute
	case err != nil:
		logging.LogError(p.logger, "failed to build vehicle position", err, slog.String("vehicle", vid))
		return DropMalformed
	}

	p.publish(vid, vp, ev.Payload.Tsi)
	return Accepted
}

// passengerCounts returns the latest valid passenger count for the event's trip.
func (p *Processor) passengerCounts(ev *hfp.VehicleEvent) *hfp.VehicleCounts {
	id := hfp.UniqueVehicleID(ev.Topic.OperatorID, ev.Topic.VehicleNumber)
	counts, ok := p.loads.Get(id, ev.PassengerTripKey())
	if !ok {
		return nil
	}
	if counts.VehicleLoad < 0 {
		p.logger.Warn("invalid passenger count",
			"vehicle", id, "vehicle_load", counts.VehicleLoad, "vehicle_load_ratio", counts.VehicleLoadRatio)
		return nil
	}
	return &counts
}

func (p *Processor) publish(vehicleID string, vp *gtfsrtpb.VehiclePosition, tsi int64) {
	pos := publisher.Position{
		VehicleID:   vehicleID,
		TopicSuffix: gtfsrt.TopicSuffix(vp),
		EventTimeMs: tsi * 1000,
		Feed:        gtfsrt.NewFeedMessage(gtfsrt.EntityID(vehicleID), vp, uint64(tsi)),
	}
	if p.now().Sub(time.Unix(tsi, 0)) >= DelayedThreshold {
		p.metrics.MessageDelayed()
	}
	if err := p.pub.PublishPosition(pos); err != nil {
		logging.LogError(p.logger, "failed to publish vehicle position", err, slog.String("vehicle", vehicleID))
		return
	}
	p.logger.Debug("published vehicle position", "vehicle", vehicleID, "tsi", tsi)
}

// Stats are the current cache sizes.
type Stats struct {
	TripClaims      int
	PassengerLoads  int
	TrackedVehicles int
}

func (p *Processor) Stats() Stats {
	return Stats{
		TripClaims:      p.claims.Len(),
		PassengerLoads:  p.loads.Len(),
		TrackedVehicles: p.stopStatus.Len(),
	}
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) MessageReceived(string)       {}
func (NopMetrics) EventDropped(DropReason)      {}
func (NopMetrics) MessageDelayed()              {}
func (NopMetrics) ProcessObserve(time.Duration) {}
