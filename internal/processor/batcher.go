package processor

import (
	"time"

	"hfp-vehicleposition/internal/hfp"
)

// batcher buffers the events of one worker and evaluates the newest event of
// each vehicle once per window. Passenger counts are evaluated immediately.
type batcher struct {
	handler Handler
	window  time.Duration
	metrics Metrics

	pending map[string]Task
	order   []string
}

func newBatcher(h Handler, window time.Duration, m Metrics) *batcher {
	return &batcher{handler: h, window: window, metrics: m, pending: make(map[string]Task)}
}

func (b *batcher) run(q <-chan Task) {
	ticker := time.NewTicker(b.window)
	defer ticker.Stop()
	for {
		select {
		case t, ok := <-q:
			if !ok {
				b.flush()
				return
			}
			b.add(t)
		case <-ticker.C:
			b.flush()
		}
	}
}

func (b *batcher) add(t Task) {
	if _, ok := t.Msg.(*hfp.VehicleEvent); !ok {
		b.handler.Handle(t.Msg, t.ReceiveTimeMs)
		t.ack()
		return
	}
	id := t.Msg.VehicleID()
	if prev, ok := b.pending[id]; ok {
		b.metrics.EventDropped(DropSuperseded)
		prev.ack()
	} else {
		b.order = append(b.order, id)
	}
	b.pending[id] = t
}

// flush evaluates buffered events in the order their vehicles first appeared.
func (b *batcher) flush() {
	for _, id := range b.order {
		t := b.pending[id]
		delete(b.pending, id)
		b.handler.Handle(t.Msg, t.ReceiveTimeMs)
		t.ack()
	}
	b.order = b.order[:0]
}
