package latest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLastValueWins(t *testing.T) {
	var v Value[int]
	r := v.NewReader("test")
	v.Publish(1)
	v.Publish(2)

	ctx, c := context.WithTimeout(context.Background(), time.Second)
	defer c()
	got, err := r.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if want := 2; got != want {
		t.Errorf("read after overwrite:\n  got: %v\n want: %v", got, want)
	}
	if _, ok := r.TryRead(); ok {
		t.Error("value was delivered twice")
	}
}

func TestReadBlocksUntilPublish(t *testing.T) {
	var v Value[string]
	r := v.NewReader("test")

	done := make(chan string)
	go func() {
		got, err := r.Read(context.Background())
		if err != nil {
			t.Errorf("read: %v", err)
		}
		done <- got
	}()

	select {
	case got := <-done:
		t.Fatalf("read returned %q before anything was published", got)
	case <-time.After(50 * time.Millisecond):
	}

	v.Publish("hello")
	select {
	case got := <-done:
		if want := "hello"; got != want {
			t.Errorf("read:\n  got: %v\n want: %v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for read")
	}
}

func TestReadCancel(t *testing.T) {
	var v Value[int]
	r := v.NewReader("test")
	ctx, c := context.WithCancel(context.Background())
	c()
	if _, err := r.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("read on cancelled context:\n  got: %v\n want: %v", err, context.Canceled)
	}
}

func TestReaderIgnoresOldValues(t *testing.T) {
	var v Value[int]
	v.Publish(1)
	r := v.NewReader("test")
	if got, ok := r.TryRead(); ok {
		t.Errorf("new reader saw value published before it existed: %v", got)
	}
}

func TestIndependentReaders(t *testing.T) {
	var v Value[int]
	a, b := v.NewReader("a"), v.NewReader("b")
	ctx, c := context.WithTimeout(context.Background(), 5*time.Second)
	defer c()

	const n = 100
	var wg sync.WaitGroup
	results := make([][]int, 2)
	for i, r := range []*Reader[int]{a, b} {
		i, r := i, r
		wg.Add(1)
		go func() {
			defer wg.Done()
			for len(results[i]) < n {
				got, err := r.Read(ctx)
				if err != nil {
					t.Errorf("reader %d: %v", i, err)
					return
				}
				results[i] = append(results[i], got)
			}
		}()
	}

	// Publish in lockstep with the readers, so neither should miss anything.
	for i := 1; i <= n; i++ {
		v.Publish(i)
		for !seen(&v, a, b) {
			time.Sleep(100 * time.Microsecond)
		}
	}
	wg.Wait()

	for i, got := range results {
		if len(got) != n {
			t.Fatalf("reader %d got %d values, want %d", i, len(got), n)
		}
		for j, x := range got {
			if want := j + 1; x != want {
				t.Fatalf("reader %d value %d:\n  got: %v\n want: %v", i, j, x, want)
			}
		}
	}
}

func seen(v *Value[int], rs ...*Reader[int]) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range rs {
		if r.seen != v.seq {
			return false
		}
	}
	return true
}

func TestSlowReaderSkipsAndStaysMonotonic(t *testing.T) {
	var v Value[int]
	r := v.NewReader("slow")
	ctx, c := context.WithTimeout(context.Background(), 5*time.Second)
	defer c()

	go func() {
		for i := 1; i <= 1000; i++ {
			v.Publish(i)
		}
	}()

	last := 0
	for last < 1000 {
		got, err := r.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got <= last {
			t.Fatalf("value went backwards: %d after %d", got, last)
		}
		last = got
		time.Sleep(time.Millisecond)
	}
}
