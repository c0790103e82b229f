package alarm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrockway/segment-clock/control/clock"
	"github.com/jrockway/segment-clock/control/latest"
	"github.com/rs/zerolog"
)

func TestCheck(t *testing.T) {
	var rang []clock.Time
	a := New(clock.Time{Hours: 12, Minutes: 1}, RingerFunc(func(at clock.Time) { rang = append(rang, at) }))

	testData := []struct {
		now  clock.Time
		want bool
	}{
		{clock.Time{Hours: 12, Minutes: 0, Seconds: 59}, false},
		{clock.Time{Hours: 12, Minutes: 1, Seconds: 0}, true},
		{clock.Time{Hours: 12, Minutes: 1, Seconds: 1}, false},
		{clock.Time{Hours: 0, Minutes: 1, Seconds: 0}, false},
		{clock.Time{Hours: 12, Minutes: 2, Seconds: 0}, false},
	}
	for _, test := range testData {
		if got, want := a.Check(test.now), test.want; got != want {
			t.Errorf("check %s:\n  got: %v\n want: %v", test.now, got, want)
		}
	}
	if got, want := len(rang), 1; got != want {
		t.Errorf("rings:\n  got: %v\n want: %v", got, want)
	}
}

func TestOncePerDay(t *testing.T) {
	count := 0
	a := New(clock.Time{Hours: 6, Minutes: 30}, RingerFunc(func(clock.Time) { count++ }))
	var now clock.Time
	for i := 0; i < 86400; i++ {
		now = now.Next()
		a.Check(now)
	}
	if got, want := count, 1; got != want {
		t.Errorf("rings in one day:\n  got: %v\n want: %v", got, want)
	}
}

func TestSetAndDisable(t *testing.T) {
	count := 0
	a := New(clock.Noon, RingerFunc(func(clock.Time) { count++ }))
	a.Disable()
	if a.Check(clock.Noon) {
		t.Error("disabled alarm rang")
	}
	if err := a.Set(clock.Time{Hours: 7}); err != nil {
		t.Fatalf("set: %v", err)
	}
	at, enabled := a.Get()
	if got, want := at, (clock.Time{Hours: 7}); got != want || !enabled {
		t.Errorf("after set:\n  got: %s enabled=%v\n want: %s enabled=true", got, enabled, want)
	}
	if !a.Check(clock.Time{Hours: 7}) {
		t.Error("alarm did not ring at new time")
	}
	if err := a.Set(clock.Time{Minutes: 60}); err == nil {
		t.Error("set accepted an invalid time")
	}
	if got, want := count, 1; got != want {
		t.Errorf("rings:\n  got: %v\n want: %v", got, want)
	}
}

func TestRunDoesNotFireEarly(t *testing.T) {
	ctx, c := context.WithCancel(context.Background())
	defer c()

	var mu sync.Mutex
	var rang []clock.Time
	a := New(clock.Time{Hours: 12, Minutes: 1}, RingerFunc(func(at clock.Time) {
		mu.Lock()
		defer mu.Unlock()
		rang = append(rang, at)
	}))

	var v latest.Value[clock.Time]
	r := v.NewReader("alarm")
	seen := v.NewReader("test")
	sched := clock.NewScheduler(clock.Time{Hours: 11, Minutes: 59, Seconds: 58}, &v)

	errch := make(chan error)
	go func() { errch <- a.Run(ctx, r) }()

	var last clock.Time
	for i := 0; i < 3; i++ {
		sched.Advance()
		last, _ = seen.TryRead()
		time.Sleep(10 * time.Millisecond)
	}
	c()
	if err := <-errch; !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error after cancel: %v", err)
	}
	if got, want := last, (clock.Time{Hours: 12, Minutes: 0, Seconds: 1}); got != want {
		t.Errorf("time after 3 ticks:\n  got: %s\n want: %s", got, want)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(rang) != 0 {
		t.Errorf("alarm rang early: %v", rang)
	}
}

func TestLogRinger(t *testing.T) {
	a := New(clock.Noon, LogRinger{Log: zerolog.Nop()})
	if !a.Check(clock.Noon) {
		t.Error("alarm did not ring")
	}
}
