package gatt

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var droppedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gatt_sink_dropped_total",
	Help: "count of accepted writes dropped because the consumer was not keeping up",
})

// Sink receives accepted writes.  Deliver runs on the caller's goroutine and must not block.
type Sink interface {
	Deliver(req WriteRequest)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(req WriteRequest)

func (f SinkFunc) Deliver(req WriteRequest) { f(req) }

// MultiSink delivers to each sink in order.
type MultiSink []Sink

func (m MultiSink) Deliver(req WriteRequest) {
	for _, s := range m {
		s.Deliver(req)
	}
}

// LogSink logs every write.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Deliver(req WriteRequest) {
	s.Log.Info().Stringer("channel", req.Channel).Msgf("rx (%d bytes): %s", req.Payload.Len(), req.Payload)
}

// QueueSink passes writes to another goroutine through a bounded queue.  When the queue is full,
// the write is dropped.
type QueueSink struct {
	ch chan WriteRequest
}

// NewQueueSink returns a QueueSink that holds up to n pending writes.
func NewQueueSink(n int) *QueueSink {
	return &QueueSink{ch: make(chan WriteRequest, n)}
}

func (q *QueueSink) Deliver(req WriteRequest) {
	select {
	case q.ch <- req:
	default:
		droppedCounter.Inc()
	}
}

// C returns the queue's receive side.
func (q *QueueSink) C() <-chan WriteRequest {
	return q.ch
}

// Run delivers queued writes to next until the context is done.
func (q *QueueSink) Run(ctx context.Context, next Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-q.ch:
			next.Deliver(req)
		}
	}
}
