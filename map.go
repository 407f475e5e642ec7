package railz

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// ParallelMap transforms every value on every rail of a ParallelPublisher.
// Each rail gets its own MapRail; nothing is shared between rails, so rails
// may run on independent goroutines without synchronization.
type ParallelMap[T, R any] struct {
	source ParallelPublisher[T]
	fn     func(T) (R, error)
	name   string
}

// Map creates a parallel operator that applies fn to each value of each rail.
// This is the reference rail operator: the parallelism and ordering of the
// source pass through unchanged.
//
// When to use:
//   - CPU-bound conversions after fanning a sequence out with Parallel
//   - Enriching values independently per rail
//   - Validating values, failing only the rail that saw a bad one
//
// Example:
//
//	source := railz.Parallel(railz.FromSlice(orders...), runtime.NumCPU())
//	totals := railz.Map(source, func(o Order) (Summary, error) {
//		if len(o.Items) == 0 {
//			return Summary{}, ErrEmptyOrder // fails this rail only
//		}
//		return summarize(o), nil
//	}).WithName("summarize")
//
// Error semantics per rail:
//   - fn returns an error or panics: the rail cancels upstream and delivers
//     OnError with the unwrapped cause; no further OnNext
//   - the error is Fatal (see Classify): it panics out of OnNext instead
//   - fn returns a nil pointer, map, chan, func or interface: treated like a
//     failure carrying ErrNilValue
//
// Parameters:
//   - source: The parallel publisher to transform
//   - fn: Transformation applied to every value
//
// Returns a new ParallelMap with the source's parallelism.
func Map[T, R any](source ParallelPublisher[T], fn func(T) (R, error)) *ParallelMap[T, R] {
	return &ParallelMap[T, R]{
		source: source,
		fn:     fn,
		name:   "map",
	}
}

// WithName sets a custom name for this operator.
// If not set, defaults to "map".
func (p *ParallelMap[T, R]) WithName(name string) *ParallelMap[T, R] {
	p.name = name
	return p
}

// Name returns the operator name.
func (p *ParallelMap[T, R]) Name() string {
	return p.name
}

// Parallelism returns the parallelism of the source.
func (p *ParallelMap[T, R]) Parallelism() int {
	return p.source.Parallelism()
}

// Ordered returns the source's flag; mapping never reorders a rail.
func (p *ParallelMap[T, R]) Ordered() bool {
	return p.source.Ordered()
}

// Subscribe wraps each subscriber in a MapRail and subscribes the source.
func (p *ParallelMap[T, R]) Subscribe(subscribers []Subscriber[R]) error {
	if err := ValidateSubscribers(p.Parallelism(), subscribers); err != nil {
		return err
	}

	parents := make([]Subscriber[T], len(subscribers))
	for i, s := range subscribers {
		parents[i] = newMapRail(i, s, p.fn)
	}
	return p.source.Subscribe(parents)
}

// MapRail is the intermediary of one rail of a ParallelMap. It is both the
// Subscriber of the upstream rail and the Subscription of the downstream one.
//
// Signals are delivered serially by the upstream, so state is a plain field.
// Request and Cancel may arrive from any goroutine.
type MapRail[T, R any] struct {
	actual    Subscriber[R]
	fn        func(T) (R, error)
	upstream  Subscription
	rail      int
	state     RailState
	cancelled atomic.Bool
}

// NewMapRail creates a standalone map rail delivering to actual.
func NewMapRail[T, R any](actual Subscriber[R], fn func(T) (R, error)) *MapRail[T, R] {
	return newMapRail(-1, actual, fn)
}

func newMapRail[T, R any](rail int, actual Subscriber[R], fn func(T) (R, error)) *MapRail[T, R] {
	return &MapRail[T, R]{
		actual: actual,
		fn:     fn,
		rail:   rail,
	}
}

// State returns the rail's lifecycle state. Only meaningful on the goroutine
// delivering signals, or after a terminal signal was observed.
func (m *MapRail[T, R]) State() RailState {
	return m.state
}

// IsCancelled reports whether Cancel was called.
func (m *MapRail[T, R]) IsCancelled() bool {
	return m.cancelled.Load()
}

// Request forwards n to the upstream subscription.
func (m *MapRail[T, R]) Request(n int64) {
	m.upstream.Request(n)
}

// Cancel cancels the upstream subscription once.
func (m *MapRail[T, R]) Cancel() {
	if m.cancelled.CompareAndSwap(false, true) && m.upstream != nil {
		m.upstream.Cancel()
	}
}

// OnSubscribe stores the upstream subscription and hands the rail downstream.
// A rail cancelled before it was subscribed cancels s instead.
func (m *MapRail[T, R]) OnSubscribe(s Subscription) {
	if m.cancelled.Load() {
		if s != nil {
			s.Cancel()
		}
		return
	}
	if !ValidateSubscription(m.upstream, s) {
		return
	}
	m.upstream = s
	m.state = RailActive
	m.actual.OnSubscribe(m)
}

// OnNext transforms v and forwards the result.
func (m *MapRail[T, R]) OnNext(v T) {
	if m.state == RailTerminated {
		return
	}

	r, err := m.apply(v)
	if err != nil {
		cause := Unwrap(err)
		ThrowIfFatal(cause)
		m.Cancel()
		m.OnError(cause)
		return
	}

	if isNil(r) {
		m.Cancel()
		m.OnError(fmt.Errorf("%w: the mapper returned a nil %T", ErrNilValue, r))
		return
	}

	m.actual.OnNext(r)
}

// apply runs fn, turning a panic into a *PanicError.
func (m *MapRail[T, R]) apply(v T) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = NewPanicError(m.rail, p)
		}
	}()
	return m.fn(v)
}

// OnError terminates the rail. A second terminal error is dropped.
func (m *MapRail[T, R]) OnError(err error) {
	if m.state == RailTerminated {
		OnErrorDropped(err)
		return
	}
	m.state = RailTerminated
	m.actual.OnError(err)
}

// OnComplete terminates the rail. Ignored once terminated.
func (m *MapRail[T, R]) OnComplete() {
	if m.state == RailTerminated {
		return
	}
	m.state = RailTerminated
	m.actual.OnComplete()
}

// isNil reports whether v is an absent value. Nil slices are valid values.
func isNil[R any](v R) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}
