package railz

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestIsNil(t *testing.T) {
	var nilPtr *int
	var nilMap map[string]int
	var nilChan chan int
	var nilFunc func()
	var nilErr error
	var nilSlice []int
	one := 1

	cases := []struct {
		name string
		got  bool
		want bool
	}{
		{"nil pointer", isNil(nilPtr), true},
		{"nil map", isNil(nilMap), true},
		{"nil chan", isNil(nilChan), true},
		{"nil func", isNil(nilFunc), true},
		{"nil interface", isNil(nilErr), true},
		{"nil any", isNil[any](nil), true},
		{"nil slice is a value", isNil(nilSlice), false},
		{"zero int", isNil(0), false},
		{"empty string", isNil(""), false},
		{"pointer", isNil(&one), false},
		{"error", isNil(errors.New("x")), false},
		{"struct", isNil(struct{}{}), false},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s: isNil = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestAddCap(t *testing.T) {
	if got := AddCap(1, 2); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := AddCap(Unbounded, 1); got != Unbounded {
		t.Errorf("expected saturation, got %d", got)
	}
	if got := AddCap(Unbounded-1, 5); got != Unbounded {
		t.Errorf("expected saturation, got %d", got)
	}
}

func TestAddRequested_Concurrent(t *testing.T) {
	var requested atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				addRequested(&requested, 1)
			}
		}()
	}
	wg.Wait()

	if got := requested.Load(); got != 8000 {
		t.Errorf("expected 8000, got %d", got)
	}

	if prev := addRequested(&requested, Unbounded); prev != 8000 {
		t.Errorf("expected previous 8000, got %d", prev)
	}
	if prev := addRequested(&requested, 1); prev != Unbounded {
		t.Errorf("expected Unbounded to stick, got %d", prev)
	}
}

func TestAtomicTime(t *testing.T) {
	var at atomicTime
	if !at.Load().IsZero() {
		t.Error("expected zero time before Store")
	}

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	at.Store(now)
	if !at.Load().Equal(now) {
		t.Errorf("expected %v, got %v", now, at.Load())
	}
}

func TestDispatcher_PrefetchLimit(t *testing.T) {
	d := newDispatcher[int](make([]Subscriber[int], 2), 4)
	if d.limit != 3 {
		t.Errorf("expected replenish limit 3 for prefetch 4, got %d", d.limit)
	}

	d = newDispatcher[int](make([]Subscriber[int], 1), 1)
	if d.limit != 1 {
		t.Errorf("expected replenish limit 1 for prefetch 1, got %d", d.limit)
	}
}
