// Package testing provides test utilities for railz: a recording Subscriber,
// a recording Subscription, and hand-driven publishers for exercising the rail
// protocol signal by signal.
package testing

import (
	"errors"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/iox"

	"github.com/zoobzio/railz"
)

// TestSubscriber records every signal it receives. It requests initialRequest
// values on subscription (none when zero) and is safe to inspect from another
// goroutine while signals arrive.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type TestSubscriber[T any] struct {
	mu                sync.Mutex
	subscription      railz.Subscription
	initialRequest    int64
	subscriptions     int
	values            []T
	errs              []error
	completions       int
	nextAfterTerminal int
	done              chan struct{}
	doneOnce          sync.Once
}

// NewTestSubscriber creates a TestSubscriber. Use railz.Unbounded to accept
// everything, or 0 to drive demand by hand with Request.
func NewTestSubscriber[T any](initialRequest int64) *TestSubscriber[T] {
	return &TestSubscriber[T]{
		initialRequest: initialRequest,
		done:           make(chan struct{}),
	}
}

// NewTestSubscribers creates n TestSubscribers with the same initial request.
func NewTestSubscribers[T any](n int, initialRequest int64) []*TestSubscriber[T] {
	subs := make([]*TestSubscriber[T], n)
	for i := range subs {
		subs[i] = NewTestSubscriber[T](initialRequest)
	}
	return subs
}

// AsSubscribers converts TestSubscribers into the slice ParallelPublisher.Subscribe takes.
func AsSubscribers[T any](subs []*TestSubscriber[T]) []railz.Subscriber[T] {
	out := make([]railz.Subscriber[T], len(subs))
	for i, s := range subs {
		out[i] = s
	}
	return out
}

func (s *TestSubscriber[T]) OnSubscribe(sub railz.Subscription) {
	s.mu.Lock()
	s.subscriptions++
	first := s.subscription == nil
	if first {
		s.subscription = sub
	}
	s.mu.Unlock()

	if !first {
		sub.Cancel()
		return
	}
	if s.initialRequest > 0 {
		sub.Request(s.initialRequest)
	}
}

func (s *TestSubscriber[T]) OnNext(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated() {
		s.nextAfterTerminal++
	}
	s.values = append(s.values, v)
}

func (s *TestSubscriber[T]) OnError(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *TestSubscriber[T]) OnComplete() {
	s.mu.Lock()
	s.completions++
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
}

// terminated must be called with mu held.
func (s *TestSubscriber[T]) terminated() bool {
	return s.completions > 0 || len(s.errs) > 0
}

// Request asks the upstream for n more values.
func (s *TestSubscriber[T]) Request(n int64) {
	s.mu.Lock()
	sub := s.subscription
	s.mu.Unlock()
	if sub != nil {
		sub.Request(n)
	}
}

// Cancel cancels the upstream subscription.
func (s *TestSubscriber[T]) Cancel() {
	s.mu.Lock()
	sub := s.subscription
	s.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

// Values returns a copy of the values received so far.
func (s *TestSubscriber[T]) Values() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.values))
	copy(out, s.values)
	return out
}

// Errors returns a copy of the errors received so far.
func (s *TestSubscriber[T]) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.errs))
	copy(out, s.errs)
	return out
}

// Err returns the first error received, or nil.
func (s *TestSubscriber[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) == 0 {
		return nil
	}
	return s.errs[0]
}

// Completions returns the number of OnComplete signals received.
func (s *TestSubscriber[T]) Completions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completions
}

// Terminations returns the number of terminal signals received.
func (s *TestSubscriber[T]) Terminations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completions + len(s.errs)
}

// Subscriptions returns the number of OnSubscribe signals received.
func (s *TestSubscriber[T]) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptions
}

// NextAfterTerminal returns the number of values received after a terminal signal.
func (s *TestSubscriber[T]) NextAfterTerminal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextAfterTerminal
}

// IsTerminated reports whether a terminal signal arrived.
func (s *TestSubscriber[T]) IsTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated()
}

// Done is closed on the first terminal signal.
func (s *TestSubscriber[T]) Done() <-chan struct{} {
	return s.done
}

// AwaitTerminal waits for a terminal signal, up to timeout on clock.
// Returns false on timeout.
func (s *TestSubscriber[T]) AwaitTerminal(clock railz.Clock, timeout time.Duration) bool {
	select {
	case <-s.done:
		return true
	case <-clock.After(timeout):
		return false
	}
}

// AwaitValues polls until at least n values arrived or timeout elapsed on
// clock. The clock must advance on its own; use railz.RealClock.
func (s *TestSubscriber[T]) AwaitValues(clock railz.Clock, n int, timeout time.Duration) bool {
	deadline := clock.Now().Add(timeout)
	var bo iox.Backoff
	for {
		s.mu.Lock()
		got := len(s.values)
		s.mu.Unlock()
		if got >= n {
			return true
		}
		if !clock.Now().Before(deadline) {
			return false
		}
		bo.Wait()
	}
}

// AwaitAll waits for every subscriber to terminate. Returns false on timeout.
func AwaitAll[T any](t *testing.T, subs []*TestSubscriber[T], timeout time.Duration) bool {
	t.Helper()

	for i, s := range subs {
		if !s.AwaitTerminal(railz.RealClock, timeout) {
			t.Errorf("rail %d: no terminal signal within %v", i, timeout)
			return false
		}
	}
	return true
}

// AssertValues verifies the subscriber received exactly expected, in order.
func AssertValues[T comparable](t *testing.T, s *TestSubscriber[T], expected ...T) {
	t.Helper()

	got := s.Values()
	if len(got) != len(expected) {
		t.Errorf("expected %d values %v, got %d values %v", len(expected), expected, len(got), got)
		return
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("value %d: expected %v, got %v", i, expected[i], got[i])
		}
	}
}

// AssertComplete verifies exactly one OnComplete and no OnError.
func AssertComplete[T any](t *testing.T, s *TestSubscriber[T]) {
	t.Helper()

	if errs := s.Errors(); len(errs) != 0 {
		t.Errorf("expected completion, got errors: %v", errs)
	}
	if c := s.Completions(); c != 1 {
		t.Errorf("expected 1 completion, got %d", c)
	}
}

// AssertError verifies exactly one OnError matching target and no OnComplete.
func AssertError[T any](t *testing.T, s *TestSubscriber[T], target error) {
	t.Helper()

	errs := s.Errors()
	if len(errs) != 1 {
		t.Errorf("expected 1 error, got %d: %v", len(errs), errs)
		return
	}
	if !errors.Is(errs[0], target) {
		t.Errorf("expected error matching %v, got %v", target, errs[0])
	}
	if c := s.Completions(); c != 0 {
		t.Errorf("expected no completion after error, got %d", c)
	}
}

// AssertTerminatedOnce verifies exactly one terminal signal and no value after it.
func AssertTerminatedOnce[T any](t *testing.T, s *TestSubscriber[T]) {
	t.Helper()

	if n := s.Terminations(); n != 1 {
		t.Errorf("expected exactly 1 terminal signal, got %d", n)
	}
	if n := s.NextAfterTerminal(); n != 0 {
		t.Errorf("expected no values after terminal signal, got %d", n)
	}
}

// AssertNotSignalled verifies the subscriber never received any signal.
func AssertNotSignalled[T any](t *testing.T, s *TestSubscriber[T]) {
	t.Helper()

	if n := s.Subscriptions(); n != 0 {
		t.Errorf("expected no subscription, got %d", n)
	}
	if v := s.Values(); len(v) != 0 {
		t.Errorf("expected no values, got %v", v)
	}
	if n := s.Terminations(); n != 0 {
		t.Errorf("expected no terminal signal, got %d", n)
	}
}
