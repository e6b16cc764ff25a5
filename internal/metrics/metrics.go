package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	MessagesReceived *prometheus.CounterVec // schema label: HfpData|PassengerCount|unknown
	EventsDropped    *prometheus.CounterVec // reason label, see processor.DropReason
	DelayedMessages  prometheus.Counter

	PositionsPublished prometheus.Counter
	NATSPublishErrs    prometheus.Counter
	NATSConnected      prometheus.Gauge

	ProcessingDuration prometheus.Histogram
	PublishDuration    prometheus.Histogram

	TripClaims      prometheus.Gauge
	PassengerLoads  prometheus.Gauge
	TrackedVehicles prometheus.Gauge

	Workers           prometheus.Gauge
	BatchWindow       prometheus.Gauge // seconds
	MaxTimeDifference prometheus.Gauge // seconds
}

func NewCollector(workers int, batchWindow, maxTimeDifference time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vehicleposition_messages_received_total",
			Help: "Input messages received by schema.",
		}, []string{"schema"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vehicleposition_events_dropped_total",
			Help: "Input messages that produced no vehicle position, by reason.",
		}, []string{"reason"}),
		DelayedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vehicleposition_delayed_messages_total",
			Help: "Positions published two minutes or more after the vehicle reported them.",
		}),
		PositionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vehicleposition_positions_published_total",
			Help: "Total vehicle positions published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vehicleposition_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vehicleposition_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vehicleposition_processing_duration_seconds",
			Help:    "Duration of evaluating one input message.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vehicleposition_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		TripClaims: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vehicleposition_trip_claims",
			Help: "Trip claims currently held.",
		}),
		PassengerLoads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vehicleposition_passenger_loads",
			Help: "Passenger counts currently cached.",
		}),
		TrackedVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vehicleposition_tracked_vehicles",
			Help: "Vehicles with a stop status.",
		}),
		Workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vehicleposition_workers",
			Help: "Number of per-vehicle processing workers.",
		}),
		BatchWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vehicleposition_batch_window_seconds",
			Help: "Batching window in seconds, 0 when events are processed immediately.",
		}),
		MaxTimeDifference: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vehicleposition_max_time_difference_seconds",
			Help: "Accepted clock skew of vehicle timestamps in seconds.",
		}),
	}

	// Register
	reg.MustRegister(
		c.MessagesReceived, c.EventsDropped, c.DelayedMessages,
		c.PositionsPublished, c.NATSPublishErrs, c.NATSConnected,
		c.ProcessingDuration, c.PublishDuration,
		c.TripClaims, c.PassengerLoads, c.TrackedVehicles,
		c.Workers, c.BatchWindow, c.MaxTimeDifference,
	)

	// Set static gauges
	c.Workers.Set(float64(workers))
	c.BatchWindow.Set(batchWindow.Seconds())
	c.MaxTimeDifference.Set(maxTimeDifference.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Router exposes /metrics and /healthz. healthy reports readiness; nil means always healthy.
func (c *Collector) Router(healthy func() bool) *httprouter.Router {
	r := httprouter.New()
	r.Handler(http.MethodGet, "/metrics", c.Handler())
	r.GET("/healthz", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		if healthy != nil && !healthy() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Serve starts an HTTP server exposing /metrics and /healthz on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger, healthy func() bool) *http.Server {
	srv := &http.Server{Addr: addr, Handler: c.Router(healthy), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}
