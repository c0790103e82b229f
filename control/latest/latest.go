// Package latest is a single-slot mailbox: each Publish replaces whatever was there, and readers
// only ever see the newest value.
//
// Every Reader keeps its own cursor, so several consumers can watch one Value and each gets every
// update it keeps up with.  A reader that falls behind skips straight to the newest value; the
// skipped values are counted in the latest_missed_values metric.
package latest

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var missedValues = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "latest_missed_values",
	Help: "count of published values a reader never saw because a newer one replaced it",
}, []string{"reader"})

// Value holds the most recently published T.  The zero value is ready to use.
type Value[T any] struct {
	mu      sync.Mutex
	v       T
	seq     uint64        // number of values published so far.
	changed chan struct{} // closed and replaced on every Publish.
}

// Publish stores v, replacing any value not yet read.  It never blocks on readers.
func (l *Value[T]) Publish(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.v = v
	l.seq++
	if l.changed != nil {
		close(l.changed)
		l.changed = nil
	}
}

// wait returns the channel that will be closed by the next Publish.  Must hold mu.
func (l *Value[T]) wait() chan struct{} {
	if l.changed == nil {
		l.changed = make(chan struct{})
	}
	return l.changed
}

// NewReader returns a reader that will see the next value published; anything already published
// counts as seen.  name labels the missed-values metric.
func (l *Value[T]) NewReader(name string) *Reader[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Reader[T]{l: l, name: name, seen: l.seq, missed: missedValues.WithLabelValues(name)}
}

// Reader is one consumer's view of a Value.  A Reader must not be shared between goroutines.
type Reader[T any] struct {
	l      *Value[T]
	name   string
	seen   uint64
	missed prometheus.Counter
}

// Read blocks until a value newer than the last one this reader returned has been published, then
// returns the newest value.  It returns early with an error if ctx is done.
func (r *Reader[T]) Read(ctx context.Context) (T, error) {
	for {
		r.l.mu.Lock()
		if r.l.seq != r.seen {
			v := r.take()
			r.l.mu.Unlock()
			return v, nil
		}
		ch := r.l.wait()
		r.l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("reader %s: waiting for value: %w", r.name, ctx.Err())
		}
	}
}

// TryRead returns the newest value if this reader has not seen it yet.
func (r *Reader[T]) TryRead() (T, bool) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if r.l.seq == r.seen {
		var zero T
		return zero, false
	}
	return r.take(), true
}

// take consumes the current value.  Must hold r.l.mu.
func (r *Reader[T]) take() T {
	if skipped := r.l.seq - r.seen - 1; skipped > 0 {
		r.missed.Add(float64(skipped))
	}
	r.seen = r.l.seq
	return r.l.v
}
