// Package railz provides parallel reactive rails: a single ordered sequence of
// values fanned out across N independently scheduled rails, each of which
// follows the reactive-streams back-pressure protocol on its own.
//
// The core abstraction is the ParallelPublisher interface. It declares a fixed
// parallelism and an ordering flag, and accepts exactly that many Subscribers
// in a single Subscribe call. Every rail then negotiates demand, receives
// values and ends with exactly one terminal signal, without ever touching the
// state of a sibling rail.
//
// Basic usage:
//
//	// Fan one sequence out over 4 rails and transform each rail.
//	source := railz.Parallel(railz.FromSlice(1, 2, 3, 4, 5, 6, 7, 8), 4)
//	doubled := railz.Map(source, func(n int) (int, error) {
//		return n * 2, nil
//	})
//
//	subscribers := make([]railz.Subscriber[int], doubled.Parallelism())
//	for i := range subscribers {
//		subscribers[i] = newPrinter(i)
//	}
//	if err := doubled.Subscribe(subscribers); err != nil {
//		log.Fatal(err)
//	}
//
// Every intermediary in the package obeys the same rail protocol:
//   - OnSubscribe is accepted once; a second subscription is cancelled
//   - OnNext is never delivered after a terminal signal
//   - exactly one of OnError or OnComplete ends a rail
//   - Cancel is idempotent and safe from any goroutine
//   - errors that cannot be delivered go to the dropped-error hook
//
// Failures are split by Classify into fatal errors, which escape as panics,
// and recoverable errors, which become the rail's terminal OnError.
package railz

import "math"

// Unbounded is the demand sentinel meaning "no limit". Demand accumulates with
// saturation, so once a rail requested Unbounded it stays unbounded.
const Unbounded int64 = math.MaxInt64

// Subscription is the demand channel between a Subscriber and its upstream.
// It is owned by exactly one Subscriber and lives as long as that rail.
type Subscription interface {
	// Request adds n to the outstanding demand. n must be positive.
	// Safe to call from any goroutine.
	Request(n int64)

	// Cancel asks the upstream to stop emitting. Cancellation is best effort:
	// a value already in flight may still arrive. Idempotent.
	Cancel()
}

// Subscriber consumes the signals of one rail.
// Signals for a single Subscriber are delivered serially, never concurrently.
type Subscriber[T any] interface {
	// OnSubscribe is called once, before any other signal.
	OnSubscribe(s Subscription)

	// OnNext delivers a value. Never called more often than requested.
	OnNext(v T)

	// OnError terminates the rail with a failure.
	OnError(err error)

	// OnComplete terminates the rail successfully.
	OnComplete()
}

// Publisher is a sequential source of values. Each Subscribe call attaches
// exactly one Subscriber.
type Publisher[T any] interface {
	Subscribe(s Subscriber[T])
}

// ParallelPublisher is a source split into a fixed number of rails.
type ParallelPublisher[T any] interface {
	// Parallelism returns the number of rails. Fixed at construction.
	Parallelism() int

	// Ordered reports whether the relative order of values within a rail is
	// meaningful to composed operators. Operators that do not reorder pass
	// it through unchanged.
	Ordered() bool

	// Subscribe attaches one Subscriber per rail. The slice length must equal
	// Parallelism(); otherwise every given Subscriber is failed with a
	// *ParallelismError, the same error is returned and the upstream is never
	// subscribed.
	Subscribe(subscribers []Subscriber[T]) error
}
