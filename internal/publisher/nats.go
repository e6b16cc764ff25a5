package publisher

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	gtfsrtpb "github.com/jamespfennell/gtfs/proto"
	"github.com/nats-io/nats.go"

	"hfp-vehicleposition/internal/gtfsrt"
)

// Message headers set on every published position.
const (
	HeaderMessageKey  = "Message-Key"
	HeaderEventTime   = "Event-Time"
	HeaderSchema      = "Schema"
	HeaderTopicSuffix = "Topic-Suffix"
)

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// Connect opens the NATS connection shared by the consumer and the publisher
// and keeps the connected gauge current.
func Connect(url, name string, logger *slog.Logger, m PublisherMetrics) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return nc, nil
}

// Position is one vehicle position ready for publication.
type Position struct {
	VehicleID   string
	TopicSuffix string
	EventTimeMs int64
	Feed        *gtfsrtpb.FeedMessage
}

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	logger      *slog.Logger
	metrics     PublisherMetrics
}

func NewNATSPublisher(nc *nats.Conn, prefix string, logSubjects bool, logger *slog.Logger, m PublisherMetrics) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix, logSubjects: logSubjects, logger: logger, metrics: m}
}

// PublishPosition publishes pos on prefix.<vehicle>. Delivery is best effort.
func (p *NATSPublisher) PublishPosition(pos Position) error {
	start := time.Now()
	msg, err := NewPositionMsg(p.prefix, pos)
	if err == nil {
		if p.logSubjects {
			p.logger.Debug("nats publish", "subject", msg.Subject)
		}
		err = p.nc.PublishMsg(msg)
	}
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// NewPositionMsg encodes pos into the message published for it.
func NewPositionMsg(prefix string, pos Position) (*nats.Msg, error) {
	b, err := gtfsrt.Encode(pos.Feed)
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(Subject(prefix, pos.VehicleID))
	msg.Data = b
	msg.Header.Set(HeaderMessageKey, pos.VehicleID)
	msg.Header.Set(HeaderEventTime, strconv.FormatInt(pos.EventTimeMs, 10))
	msg.Header.Set(HeaderSchema, gtfsrt.SchemaVehiclePosition)
	if pos.TopicSuffix != "" {
		msg.Header.Set(HeaderTopicSuffix, pos.TopicSuffix)
	}
	return msg, nil
}

// Subject returns the subject positions of vehicleID are published on.
func Subject(prefix, vehicleID string) string {
	if prefix == "" {
		return subjectToken(vehicleID)
	}
	return prefix + "." + subjectToken(vehicleID)
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
