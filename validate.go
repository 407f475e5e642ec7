package railz

import "sync/atomic"

// ValidateSubscription enforces the single-subscription rule of OnSubscribe.
// It returns true when next may be stored. When current is already set, next
// is cancelled at once, ErrDuplicateSubscription is reported to the
// dropped-error hook and false is returned.
func ValidateSubscription(current, next Subscription) bool {
	if next == nil {
		OnErrorDropped(ErrNilSubscription)
		return false
	}
	if current != nil {
		next.Cancel()
		OnErrorDropped(ErrDuplicateSubscription)
		return false
	}
	return true
}

// ValidateRequest reports whether n is a legal request amount. Non-positive
// amounts are reported to the dropped-error hook as *InvalidDemandError.
func ValidateRequest(n int64) bool {
	if n <= 0 {
		OnErrorDropped(&InvalidDemandError{N: n})
		return false
	}
	return true
}

// ValidateSubscribers checks a Subscribe call against the declared
// parallelism. On mismatch every non-nil subscriber receives an empty
// subscription followed by the returned *ParallelismError, and the caller
// must not subscribe upstream.
func ValidateSubscribers[T any](parallelism int, subscribers []Subscriber[T]) error {
	if len(subscribers) == parallelism {
		return nil
	}
	err := &ParallelismError{Parallelism: parallelism, Subscribers: len(subscribers)}
	for _, s := range subscribers {
		if s != nil {
			Error(s, err)
		}
	}
	return err
}

// AddCap returns a+b saturated at Unbounded. Both must be non-negative.
func AddCap(a, b int64) int64 {
	if a > Unbounded-b {
		return Unbounded
	}
	return a + b
}

// addRequested atomically adds n to the demand counter, saturating at
// Unbounded, and returns the previous value.
func addRequested(requested *atomic.Int64, n int64) int64 {
	for {
		r := requested.Load()
		if r == Unbounded {
			return Unbounded
		}
		if requested.CompareAndSwap(r, AddCap(r, n)) {
			return r
		}
	}
}
