package testing

import (
	"sync"
	"sync/atomic"

	"github.com/zoobzio/railz"
)

// RecordingSubscription counts Request and Cancel calls.
type RecordingSubscription struct {
	mu        sync.Mutex
	requested int64
	requests  int
	cancels   atomic.Int64
}

func (r *RecordingSubscription) Request(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
	if n > 0 {
		r.requested = railz.AddCap(r.requested, n)
	}
}

func (r *RecordingSubscription) Cancel() {
	r.cancels.Add(1)
}

// Requested returns the accumulated demand, saturated at railz.Unbounded.
func (r *RecordingSubscription) Requested() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requested
}

// Requests returns the number of Request calls.
func (r *RecordingSubscription) Requests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

// Cancels returns the number of Cancel calls.
func (r *RecordingSubscription) Cancels() int {
	return int(r.cancels.Load())
}

// IsCancelled reports whether Cancel was called at least once.
func (r *RecordingSubscription) IsCancelled() bool {
	return r.cancels.Load() > 0
}

// ManualPublisher is a Publisher driven by hand. It ignores demand, which
// makes it suitable for provoking protocol edge cases.
type ManualPublisher[T any] struct {
	mu           sync.Mutex
	subscriber   railz.Subscriber[T]
	subscription *RecordingSubscription
	subscribes   int
}

// NewManualPublisher creates an unsubscribed ManualPublisher.
func NewManualPublisher[T any]() *ManualPublisher[T] {
	return &ManualPublisher[T]{}
}

// Subscribe records s and hands it a RecordingSubscription.
func (p *ManualPublisher[T]) Subscribe(s railz.Subscriber[T]) {
	rs := &RecordingSubscription{}
	p.mu.Lock()
	p.subscriber = s
	p.subscription = rs
	p.subscribes++
	p.mu.Unlock()

	s.OnSubscribe(rs)
}

// Subscriber returns the latest subscriber, or nil.
func (p *ManualPublisher[T]) Subscriber() railz.Subscriber[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscriber
}

// Subscription returns the subscription handed to the latest subscriber.
func (p *ManualPublisher[T]) Subscription() *RecordingSubscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscription
}

// Subscribes returns how many times Subscribe was called.
func (p *ManualPublisher[T]) Subscribes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribes
}

// Next delivers values to the latest subscriber.
func (p *ManualPublisher[T]) Next(values ...T) {
	s := p.Subscriber()
	for _, v := range values {
		s.OnNext(v)
	}
}

// Error delivers OnError to the latest subscriber.
func (p *ManualPublisher[T]) Error(err error) {
	p.Subscriber().OnError(err)
}

// Complete delivers OnComplete to the latest subscriber.
func (p *ManualPublisher[T]) Complete() {
	p.Subscriber().OnComplete()
}

// ManualParallel is a ParallelPublisher whose rails are ManualPublishers.
type ManualParallel[T any] struct {
	rails      []*ManualPublisher[T]
	ordered    bool
	subscribes atomic.Int64
}

// NewManualParallel creates a ManualParallel with the given parallelism.
func NewManualParallel[T any](parallelism int, ordered bool) *ManualParallel[T] {
	rails := make([]*ManualPublisher[T], parallelism)
	for i := range rails {
		rails[i] = NewManualPublisher[T]()
	}
	return &ManualParallel[T]{rails: rails, ordered: ordered}
}

func (p *ManualParallel[T]) Parallelism() int {
	return len(p.rails)
}

func (p *ManualParallel[T]) Ordered() bool {
	return p.ordered
}

// Subscribe validates the count and subscribes each rail in index order.
func (p *ManualParallel[T]) Subscribe(subscribers []railz.Subscriber[T]) error {
	if err := railz.ValidateSubscribers(len(p.rails), subscribers); err != nil {
		return err
	}
	p.subscribes.Add(1)
	for i, s := range subscribers {
		p.rails[i].Subscribe(s)
	}
	return nil
}

// Rail returns the publisher of rail i.
func (p *ManualParallel[T]) Rail(i int) *ManualPublisher[T] {
	return p.rails[i]
}

// Subscribes returns how many Subscribe calls reached the rails.
func (p *ManualParallel[T]) Subscribes() int {
	return int(p.subscribes.Load())
}
