package railz

import "sync/atomic"

// FromSlice creates a Publisher emitting values in order, honouring demand,
// then completing. Each Subscribe replays the slice from the start.
func FromSlice[T any](values ...T) Publisher[T] {
	return slicePublisher[T]{values: values}
}

// Empty creates a Publisher that completes immediately.
func Empty[T any]() Publisher[T] {
	return slicePublisher[T]{}
}

// Fail creates a Publisher that fails immediately with err.
func Fail[T any](err error) Publisher[T] {
	return failPublisher[T]{err: err}
}

type failPublisher[T any] struct {
	err error
}

func (p failPublisher[T]) Subscribe(s Subscriber[T]) {
	Error(s, p.err)
}

type slicePublisher[T any] struct {
	values []T
}

func (p slicePublisher[T]) Subscribe(s Subscriber[T]) {
	if len(p.values) == 0 {
		Complete(s)
		return
	}
	s.OnSubscribe(&sliceSubscription[T]{actual: s, values: p.values})
}

// sliceSubscription emits from whichever goroutine moves requested away from
// zero; concurrent Requests only add demand for that loop to pick up.
type sliceSubscription[T any] struct {
	actual    Subscriber[T]
	values    []T
	index     int
	requested atomic.Int64
	cancelled atomic.Bool
}

func (s *sliceSubscription[T]) Request(n int64) {
	if !ValidateRequest(n) {
		return
	}
	if addRequested(&s.requested, n) == 0 {
		s.emit()
	}
}

func (s *sliceSubscription[T]) Cancel() {
	s.cancelled.Store(true)
}

func (s *sliceSubscription[T]) emit() {
	var emitted int64
	r := s.requested.Load()

	for {
		for emitted != r && s.index < len(s.values) {
			if s.cancelled.Load() {
				return
			}
			v := s.values[s.index]
			s.index++
			s.actual.OnNext(v)
			emitted++
		}

		if s.cancelled.Load() {
			return
		}
		if s.index == len(s.values) {
			s.actual.OnComplete()
			return
		}

		r = s.requested.Load()
		if r == emitted {
			r = s.requested.Add(-emitted)
			if r == 0 {
				return
			}
			emitted = 0
		}
	}
}
