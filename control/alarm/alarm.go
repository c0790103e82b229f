// Package alarm watches the clock and rings at the set time.
package alarm

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrockway/segment-clock/control/clock"
	"github.com/jrockway/segment-clock/control/latest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var firedCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "alarm_fired_total",
	Help: "count of times the alarm went off",
})

// Ringer is whatever makes noise.
type Ringer interface {
	Ring(at clock.Time)
}

// RingerFunc adapts a function to a Ringer.
type RingerFunc func(at clock.Time)

func (f RingerFunc) Ring(at clock.Time) { f(at) }

// LogRinger rings by logging a warning.  Appliances without a buzzer use it.
type LogRinger struct {
	Log zerolog.Logger
}

func (r LogRinger) Ring(at clock.Time) {
	r.Log.Warn().Stringer("at", at).Msg("ALARM!")
}

// Alarm compares each time it sees against the trigger time.
type Alarm struct {
	ringer Ringer

	mu      sync.Mutex
	at      clock.Time // must hold mu.
	enabled bool       // must hold mu.
}

// New returns an alarm set for at.
func New(at clock.Time, r Ringer) *Alarm {
	return &Alarm{ringer: r, at: at, enabled: true}
}

// Set changes the trigger time and enables the alarm.
func (a *Alarm) Set(at clock.Time) error {
	if !at.Valid() {
		return fmt.Errorf("set alarm: invalid time %s", at)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.at = at
	a.enabled = true
	return nil
}

// Disable keeps the trigger time but stops the alarm from ringing.
func (a *Alarm) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = false
}

// Get returns the trigger time and whether the alarm is enabled.
func (a *Alarm) Get() (clock.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.at, a.enabled
}

// Check rings if now is exactly the trigger time, and reports whether it rang.  Hours, minutes
// and seconds must all match, so at one tick per second this happens once a day.
func (a *Alarm) Check(now clock.Time) bool {
	at, enabled := a.Get()
	if !enabled || now != at {
		return false
	}
	firedCounter.Inc()
	a.ringer.Ring(now)
	return true
}

// Run checks every time read from r until the context is cancelled.
func (a *Alarm) Run(ctx context.Context, r *latest.Reader[clock.Time]) error {
	for {
		now, err := r.Read(ctx)
		if err != nil {
			return fmt.Errorf("alarm: %w", err)
		}
		a.Check(now)
	}
}
