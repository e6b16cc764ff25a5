// Package consumer reads HFP and passenger count messages from a NATS
// JetStream stream and hands them to the processor.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"hfp-vehicleposition/internal/hfp"
	"hfp-vehicleposition/internal/logging"
	"hfp-vehicleposition/internal/processor"
	"hfp-vehicleposition/internal/publisher"
)

type Config struct {
	Stream        string
	Durable       string
	Subjects      []string
	MaxAckPending int
}

type Dispatcher interface {
	Dispatch(ctx context.Context, t processor.Task) error
}

// message is the part of jetstream.Msg the consumer needs.
type message interface {
	Data() []byte
	Headers() nats.Header
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
}

type Consumer struct {
	js         jetstream.JetStream
	cfg        Config
	dispatcher Dispatcher
	metrics    processor.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func New(nc *nats.Conn, cfg Config, d Dispatcher, m processor.Metrics, logger *slog.Logger) (*Consumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return newConsumer(js, cfg, d, m, logger), nil
}

func newConsumer(js jetstream.JetStream, cfg Config, d Dispatcher, m processor.Metrics, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = processor.NopMetrics{}
	}
	return &Consumer{js: js, cfg: cfg, dispatcher: d, metrics: m, logger: logger, now: time.Now}
}

// ensureStream creates the input stream when it does not exist yet.
func (c *Consumer) ensureStream(ctx context.Context) error {
	_, err := c.js.Stream(ctx, c.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("lookup stream %s: %w", c.cfg.Stream, err)
	}
	c.logger.Info("creating stream", "stream", c.cfg.Stream, "subjects", c.cfg.Subjects)
	_, err = c.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     c.cfg.Stream,
		Subjects: c.cfg.Subjects,
		MaxAge:   time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", c.cfg.Stream, err)
	}
	return nil
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureStream(ctx); err != nil {
		return err
	}
	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:        c.cfg.Durable,
		FilterSubjects: c.cfg.Subjects,
		AckPolicy:      jetstream.AckExplicitPolicy,
		DeliverPolicy:  jetstream.DeliverNewPolicy,
		MaxAckPending:  c.cfg.MaxAckPending,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", c.cfg.Durable, err)
	}

	cc, err := cons.Consume(func(m jetstream.Msg) { c.handle(ctx, m) },
		jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			logging.LogError(c.logger, "consume error", err, slog.String("consumer", c.cfg.Durable))
		}))
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.Durable, err)
	}
	c.logger.Info("consuming", "stream", c.cfg.Stream, "consumer", c.cfg.Durable, "subjects", c.cfg.Subjects)

	<-ctx.Done()
	cc.Stop()
	<-cc.Closed()
	return nil
}

// handle decodes m once and dispatches it. Every message is acknowledged,
// whether or not it produced a vehicle position.
func (c *Consumer) handle(ctx context.Context, m message) {
	schema := m.Headers().Get(publisher.HeaderSchema)
	c.metrics.MessageReceived(schemaLabel(schema))

	msg, err := hfp.Decode(schema, m.Data())
	if err != nil {
		reason := processor.DropMalformed
		if errors.Is(err, hfp.ErrUnknownSchema) {
			reason = processor.DropUnknownSchema
		}
		c.metrics.EventDropped(reason)
		c.logger.Warn("dropping undecodable message", "error", err, "reason", string(reason))
		c.ack(m)
		return
	}

	task := processor.Task{
		Msg:           msg,
		ReceiveTimeMs: c.receiveTime(m),
		Ack:           func() { c.ack(m) },
	}
	if err := c.dispatcher.Dispatch(ctx, task); err != nil {
		c.logger.Warn("message not evaluated", "vehicle", msg.VehicleID(), "error", err)
		c.ack(m)
	}
}

// receiveTime prefers the Event-Time header, then the stream timestamp.
func (c *Consumer) receiveTime(m message) int64 {
	if v := m.Headers().Get(publisher.HeaderEventTime); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return ms
		}
	}
	if md, err := m.Metadata(); err == nil && md != nil && !md.Timestamp.IsZero() {
		return md.Timestamp.UnixMilli()
	}
	return c.now().UnixMilli()
}

func (c *Consumer) ack(m message) {
	if err := m.Ack(); err != nil {
		logging.LogError(c.logger, "ack failed", err)
	}
}

func schemaLabel(schema string) string {
	switch schema {
	case hfp.SchemaHfpData, hfp.SchemaPassengerCount:
		return schema
	default:
		return "unknown"
	}
}
