package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"hfp-vehicleposition/internal/cache"
	"hfp-vehicleposition/internal/hfp"
)

var ErrStopped = errors.New("dispatcher stopped")

// Task is one decoded input message waiting for evaluation. Ack is called
// exactly once after the message has been evaluated or superseded.
type Task struct {
	Msg           hfp.Message
	ReceiveTimeMs int64
	Ack           func()
}

func (t Task) ack() {
	if t.Ack != nil {
		t.Ack()
	}
}

// Handler evaluates messages. *Processor implements it.
type Handler interface {
	Handle(msg hfp.Message, receiveTimeMs int64) DropReason
}

// Dispatcher routes each message to a worker chosen by its vehicle id, so one
// vehicle's messages are evaluated in arrival order by a single goroutine
// while different vehicles proceed in parallel.
type Dispatcher struct {
	handler     Handler
	batchWindow time.Duration
	metrics     Metrics
	queues      []chan Task

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given number of workers. With a
// positive batchWindow, only the newest event per vehicle is evaluated once
// per window and the older ones are acknowledged unevaluated.
func NewDispatcher(h Handler, workers, queueSize int, batchWindow time.Duration, m Metrics) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if m == nil {
		m = NopMetrics{}
	}
	d := &Dispatcher{handler: h, batchWindow: batchWindow, metrics: m, queues: make([]chan Task, workers)}
	for i := range d.queues {
		d.queues[i] = make(chan Task, queueSize)
	}
	return d
}

// Start launches the workers. They run until Stop.
func (d *Dispatcher) Start() {
	for _, q := range d.queues {
		d.wg.Add(1)
		if d.batchWindow > 0 {
			b := newBatcher(d.handler, d.batchWindow, d.metrics)
			go func(q chan Task) {
				defer d.wg.Done()
				b.run(q)
			}(q)
			continue
		}
		go func(q chan Task) {
			defer d.wg.Done()
			for t := range q {
				d.handler.Handle(t.Msg, t.ReceiveTimeMs)
				t.ack()
			}
		}(q)
	}
}

// Dispatch queues t for its vehicle's worker. It blocks while the queue is
// full, until ctx is done.
func (d *Dispatcher) Dispatch(ctx context.Context, t Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	q := d.queues[cache.StringHash(t.Msg.VehicleID())%uint64(len(d.queues))]
	select {
	case q <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting tasks, evaluates everything already queued and waits
// for the workers to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
