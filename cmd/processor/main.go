package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"hfp-vehicleposition/internal/config"
	"hfp-vehicleposition/internal/consumer"
	"hfp-vehicleposition/internal/db"
	"hfp-vehicleposition/internal/logging"
	"hfp-vehicleposition/internal/metrics"
	"hfp-vehicleposition/internal/processor"
	"hfp-vehicleposition/internal/publisher"
	"hfp-vehicleposition/internal/stops"
)

const statsInterval = 15 * time.Second

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("logger error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logging.LogError(logger, "processor stopped", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	mcol := metrics.NewCollector(cfg.Workers, cfg.BatchWindow, cfg.MaxTimeDifference)

	nc, err := publisher.Connect(cfg.NATSURL, "vehicleposition-processor", logger, wrapPublisherMetrics(mcol))
	if err != nil {
		return err
	}
	defer nc.Close()

	locations, err := loadStops(ctx, cfg, logger)
	if err != nil {
		return err
	}

	pub := publisher.NewNATSPublisher(nc, cfg.OutputSubjectPrefix, cfg.LogNATSSubjects, logger, wrapPublisherMetrics(mcol))
	pm := &procMetrics{c: mcol}
	proc, err := processor.New(processor.Config{
		Location:                      cfg.Location,
		MaxTimeDifference:             cfg.MaxTimeDifference,
		MaxDelayAllowed:               cfg.MaxDelayAllowed,
		MaxDelayEnabled:               cfg.MaxDelayEnabled,
		AddedTripEnabledModes:         cfg.AddedTripEnabledModes,
		StopStatusWithoutEventsModes:  cfg.StopStatusWithoutEventsModes,
		PassengerCountEnabledVehicles: cfg.PassengerCountEnabledVehicles,
		PercentThresholds:             cfg.Tables.Percent,
		LoadRatioThresholds:           cfg.Tables.LoadRatio,
		TripClaimTTL:                  cfg.TripClaimTTL,
		PassengerLoadTTL:              cfg.PassengerLoadTTL,
		PassengerLoadMaxEntries:       cfg.PassengerLoadMaxEntries,
		StopStatusMaxVehicles:         cfg.StopStatusMaxVehicles,
		Stops:                         locations,
	}, pub, pm, logger)
	if err != nil {
		return err
	}

	dispatcher := processor.NewDispatcher(proc, cfg.Workers, 0, cfg.BatchWindow, pm)
	dispatcher.Start()
	defer dispatcher.Stop()

	cons, err := consumer.New(nc, consumer.Config{
		Stream:        cfg.NATSStreamName,
		Durable:       cfg.ConsumerName,
		Subjects:      cfg.InputSubjects,
		MaxAckPending: cfg.Workers * 256,
	}, dispatcher, pm, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cons.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				s := proc.Stats()
				mcol.TripClaims.Set(float64(s.TripClaims))
				mcol.PassengerLoads.Set(float64(s.PassengerLoads))
				mcol.TrackedVehicles.Set(float64(s.TrackedVehicles))
			}
		}
	})
	if cfg.MetricsAddr != "" {
		srv := mcol.Serve(cfg.MetricsAddr, logger, nc.IsConnected)
		g.Go(func() error {
			<-gctx.Done()
			// Shutdown with timeout
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// loadStops resolves the configured fallback stops once at startup.
func loadStops(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stops.Locations, error) {
	overrides := cfg.Tables.FallbackStops
	if len(overrides) == 0 {
		return stops.Locations{}, nil
	}

	var sources []stops.Source
	if cfg.DatabaseURL != "" {
		sqlDB, err := openStopsDB(ctx, cfg, logger)
		if err != nil {
			return stops.Locations{}, err
		}
		defer logging.SafeClose(sqlDB, logger, "gtfs database")
		sources = append(sources, db.StopSource{DB: sqlDB})
	}
	if cfg.GTFSStaticPath != "" {
		sources = append(sources, stops.StaticFeed{Path: cfg.GTFSStaticPath})
	}

	locations, err := stops.Load(ctx, logger, overrides, sources...)
	if err != nil {
		return stops.Locations{}, err
	}
	logger.Info("fallback stops loaded", "configured", len(overrides), "resolved", locations.Len())
	return locations, nil
}

// openStopsDB connects to the GTFS database, following CITY to its latest
// successful import when set.
func openStopsDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	dsn := cfg.DatabaseURL
	if cfg.City != "" {
		// latest_successful_imports lives in the cluster's 'postgres' database
		rootDSN, err := db.WithDatabase(cfg.DatabaseURL, "postgres")
		if err != nil {
			return nil, err
		}
		metaDB, err := db.Open(rootDSN)
		if err != nil {
			return nil, err
		}
		defer logging.SafeClose(metaDB, logger, "meta database")
		if err := db.Ping(ctx, metaDB); err != nil {
			return nil, err
		}
		name, err := db.LatestFeedDatabase(ctx, metaDB, cfg.City)
		if err != nil {
			return nil, err
		}
		if dsn, err = db.WithDatabase(cfg.DatabaseURL, name); err != nil {
			return nil, err
		}
		logger.Info("using city database", "database", name, "city", cfg.City)
	}

	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		logging.SafeClose(sqlDB, logger, "gtfs database")
		return nil, err
	}
	return sqlDB, nil
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.PositionsPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

// procMetrics adapts the Collector to processor.Metrics.
type procMetrics struct{ c *metrics.Collector }

func (p *procMetrics) MessageReceived(schema string) {
	p.c.MessagesReceived.WithLabelValues(schema).Inc()
}

func (p *procMetrics) EventDropped(r processor.DropReason) {
	p.c.EventsDropped.WithLabelValues(string(r)).Inc()
}

func (p *procMetrics) MessageDelayed()                { p.c.DelayedMessages.Inc() }
func (p *procMetrics) ProcessObserve(d time.Duration) { p.c.ProcessingDuration.Observe(d.Seconds()) }
