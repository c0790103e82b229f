// Package clock keeps the time of day shown on the clock face.
//
// The clock does not read the host's wall clock.  It starts from a configured time and counts
// ticks of a periodic timer, which is what the appliance does when it has no network time.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/jrockway/segment-clock/control/latest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/net/trace"
)

var (
	tickCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clock_ticks_total",
		Help: "count of one-second advances of the clock",
	})

	tickDelayMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tick_delay",
		Help:    "amount of time between the timer firing and the new time being published, in nanoseconds",
		Buckets: prometheus.ExponentialBuckets(1000, 10, 8),
	})
)

// Time is a time of day with one-second resolution.  It is always valid: Hours < 24,
// Minutes < 60, Seconds < 60.
type Time struct {
	Hours, Minutes, Seconds uint8
}

// Noon is where a freshly powered clock starts.
var Noon = Time{Hours: 12}

// Next returns the time one second later, wrapping from 23:59:59 to 00:00:00.
func (t Time) Next() Time {
	t.Seconds++
	if t.Seconds >= 60 {
		t.Seconds = 0
		t.Minutes++
	}
	if t.Minutes >= 60 {
		t.Minutes = 0
		t.Hours++
	}
	if t.Hours >= 24 {
		t.Hours = 0
	}
	return t
}

// HHMM packs hours and minutes into one decimal number for a 4-digit display: 13:05 is 1305.
func (t Time) HHMM() int {
	return int(t.Hours)*100 + int(t.Minutes)
}

// Valid reports whether t is a real time of day.
func (t Time) Valid() bool {
	return t.Hours < 24 && t.Minutes < 60 && t.Seconds < 60
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hours, t.Minutes, t.Seconds)
}

// ParseTime parses "15:04:05" or "15:04".
func ParseTime(s string) (Time, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			h, m, sec := parsed.Clock()
			return Time{Hours: uint8(h), Minutes: uint8(m), Seconds: uint8(sec)}, nil
		}
	}
	return Time{}, fmt.Errorf("parse time %q: want HH:MM:SS", s)
}

// Scheduler owns the current time.  Once Run is called, only the Run goroutine changes it.
type Scheduler struct {
	now      Time
	out      *latest.Value[Time]
	interval time.Duration
	setCh    chan Time
	nowCh    chan chan Time

	log    zerolog.Logger
	events trace.EventLog
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval changes how often the clock advances.  Anything but one second makes a bad clock
// and a fast test.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// NewScheduler returns a scheduler that starts counting at start and publishes each new time to
// out.
func NewScheduler(start Time, out *latest.Value[Time], opts ...Option) *Scheduler {
	s := &Scheduler{
		now:      start,
		out:      out,
		interval: time.Second,
		setCh:    make(chan Time),
		nowCh:    make(chan chan Time),
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Advance moves the clock forward one second and publishes a copy of the new time, replacing
// any value the consumers have not read yet.  It must only be called by the goroutine that owns
// the scheduler: Run, or a test that never calls Run.
func (s *Scheduler) Advance() Time {
	s.now = s.now.Next()
	s.out.Publish(s.now)
	tickCounter.Inc()
	return s.now
}

// Run advances the clock once per interval until the context is cancelled.  The timer is not
// assumed to be exact; a late tick is still just one second.
func (s *Scheduler) Run(ctx context.Context) error {
	s.events = trace.NewEventLog("clock", "scheduler")
	defer s.events.Finish()
	s.events.Printf("starting at %s, interval %s", s.now, s.interval)
	s.log.Info().Stringer("start", s.now).Dur("interval", s.interval).Msg("clock running")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case fired := <-ticker.C:
			now := s.Advance()
			tickDelayMetric.Observe(float64(time.Since(fired).Nanoseconds()))
			if now.Seconds == 0 {
				s.events.Printf("%s", now)
			}
		case t := <-s.setCh:
			s.events.Printf("set from %s to %s", s.now, t)
			s.log.Info().Stringer("from", s.now).Stringer("to", t).Msg("clock set")
			s.now = t
			s.out.Publish(s.now)
		case reply := <-s.nowCh:
			reply <- s.now
		case <-ctx.Done():
			return fmt.Errorf("clock stopped at %s: %w", s.now, ctx.Err())
		}
	}
}

// Set asks the running scheduler to jump to t and publish it.  It blocks until Run accepts the
// request or ctx is done.
func (s *Scheduler) Set(ctx context.Context, t Time) error {
	if !t.Valid() {
		return fmt.Errorf("set clock: invalid time %s", t)
	}
	select {
	case s.setCh <- t:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("set clock: %w", ctx.Err())
	}
}

// Now returns a copy of the running scheduler's current time.
func (s *Scheduler) Now(ctx context.Context) (Time, error) {
	reply := make(chan Time, 1)
	select {
	case s.nowCh <- reply:
	case <-ctx.Done():
		return Time{}, fmt.Errorf("read clock: %w", ctx.Err())
	}
	return <-reply, nil
}
