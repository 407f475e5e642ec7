package railz

import (
	"sync/atomic"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
	"github.com/google/uuid"
)

const (
	// queueCapacity bounds the SPSC queue between upstream and the rails.
	// Twice the largest prefetch, so a well-behaved upstream never fills it.
	queueCapacity = 512

	// DefaultPrefetch is the number of values requested from upstream up front.
	DefaultPrefetch = 256

	// MaxPrefetch is the largest accepted prefetch.
	MaxPrefetch = queueCapacity / 2
)

// ParallelSource splits one ordered sequence into a fixed number of rails.
// Values are handed out round-robin to the rails that currently have demand,
// so a slow rail never holds back the others.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type ParallelSource[T any] struct {
	source      Publisher[T]
	parallelism int
	prefetch    int
	ordered     bool
	name        string
	lastID      atomic.Pointer[uuid.UUID]
}

// Parallel creates a ParallelPublisher fanning source out over parallelism
// rails. This is the entry point from a sequential Publisher into the rail
// model.
//
// When to use:
//   - Spreading CPU-bound per-value work across cores
//   - Feeding N independent consumers from one sequence
//   - Isolating failures: an error on one rail leaves the others running
//
// Example:
//
//	rails := railz.Parallel(railz.FromSlice(jobs...), runtime.NumCPU()).
//		WithPrefetch(64).
//		WithName("jobs")
//
//	results := railz.Map(rails, runJob)
//	err := results.Subscribe(subscribers)
//
// Dispatch semantics:
//   - every rail receives a subsequence of the source, in source order
//   - cancelling one rail stops delivery to it; the rest keep going
//   - the upstream is cancelled once every rail has cancelled
//   - upstream completion reaches every rail still subscribed after the
//     values already queued
//   - upstream failure reaches every rail still subscribed at once, even
//     without demand; queued values are discarded
//
// Default configuration:
//   - Prefetch: 256 (DefaultPrefetch)
//   - Ordered: false
//   - Name: "parallel"
//
// Parameters:
//   - source: The sequence to split
//   - parallelism: Number of rails (values below 1 are raised to 1)
//
// Returns a new ParallelSource with fluent configuration methods.
func Parallel[T any](source Publisher[T], parallelism int) *ParallelSource[T] {
	if parallelism < 1 {
		parallelism = 1
	}
	return &ParallelSource[T]{
		source:      source,
		parallelism: parallelism,
		prefetch:    DefaultPrefetch,
		name:        "parallel",
	}
}

// WithPrefetch sets how many values are requested from upstream ahead of
// rail demand. Clamped to [1, MaxPrefetch].
func (p *ParallelSource[T]) WithPrefetch(n int) *ParallelSource[T] {
	switch {
	case n < 1:
		n = 1
	case n > MaxPrefetch:
		n = MaxPrefetch
	}
	p.prefetch = n
	return p
}

// WithOrdered sets the ordering flag reported to composed operators.
func (p *ParallelSource[T]) WithOrdered(ordered bool) *ParallelSource[T] {
	p.ordered = ordered
	return p
}

// WithName sets a custom name for this source.
func (p *ParallelSource[T]) WithName(name string) *ParallelSource[T] {
	p.name = name
	return p
}

// Name returns the source name.
func (p *ParallelSource[T]) Name() string {
	return p.name
}

// Parallelism returns the number of rails.
func (p *ParallelSource[T]) Parallelism() int {
	return p.parallelism
}

// Ordered returns the ordering flag.
func (p *ParallelSource[T]) Ordered() bool {
	return p.ordered
}

// Prefetch returns the configured upstream prefetch.
func (p *ParallelSource[T]) Prefetch() int {
	return p.prefetch
}

// ID returns the id of the latest accepted Subscribe, as it appears in log
// lines, or uuid.Nil before the first one.
func (p *ParallelSource[T]) ID() uuid.UUID {
	if id := p.lastID.Load(); id != nil {
		return *id
	}
	return uuid.Nil
}

// Subscribe validates the subscriber count and subscribes a dispatcher to the
// upstream sequence.
func (p *ParallelSource[T]) Subscribe(subscribers []Subscriber[T]) error {
	if err := ValidateSubscribers(p.parallelism, subscribers); err != nil {
		logs().Warn("railz: subscribe rejected",
			"source", p.name, "parallelism", p.parallelism, "subscribers", len(subscribers))
		return err
	}

	d := newDispatcher(subscribers, p.prefetch)
	p.lastID.Store(&d.id)
	logs().Debug("railz: parallel subscribe",
		"source", p.name, "id", d.id.String(), "rails", len(subscribers), "prefetch", p.prefetch)
	p.source.Subscribe(d)
	return nil
}

// dispatcher subscribes to the upstream sequence and distributes its values.
// Upstream signals enqueue; all rail delivery happens inside drain, which is
// serialized by wip, so each rail sees its signals one at a time.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type dispatcher[T any] struct {
	id          uuid.UUID
	subscribers []Subscriber[T]
	rails       []dispatchRail[T]
	upstream    Subscription
	queue       lfq.SPSC[T]
	prefetch    int
	limit       int

	wip       atomic.Uint32
	done      atomic.Bool
	err       error // written before done
	cancelled atomic.Int32

	// Owned by the goroutine holding wip.
	index      int
	consumed   int
	pending    T
	hasPending bool
}

// dispatchRail is the Subscription handed to one rail.
type dispatchRail[T any] struct {
	parent    *dispatcher[T]
	index     int
	requested atomic.Int64
	emitted   int64 // drain only
	cancelled atomic.Bool
}

func newDispatcher[T any](subscribers []Subscriber[T], prefetch int) *dispatcher[T] {
	d := &dispatcher[T]{
		id:          uuid.New(),
		subscribers: subscribers,
		rails:       make([]dispatchRail[T], len(subscribers)),
		prefetch:    prefetch,
		limit:       prefetch - prefetch>>2,
	}
	d.queue.Init(queueCapacity)
	for i := range d.rails {
		d.rails[i].parent = d
		d.rails[i].index = i
	}
	return d
}

func (r *dispatchRail[T]) Request(n int64) {
	if !ValidateRequest(n) {
		return
	}
	addRequested(&r.requested, n)
	r.parent.drain()
}

func (r *dispatchRail[T]) Cancel() {
	if !r.cancelled.CompareAndSwap(false, true) {
		return
	}
	d := r.parent
	if int(d.cancelled.Add(1)) == len(d.rails) {
		logs().Debug("railz: all rails cancelled", "id", d.id.String())
		d.upstream.Cancel()
	}
	d.drain()
}

func (d *dispatcher[T]) OnSubscribe(s Subscription) {
	if !ValidateSubscription(d.upstream, s) {
		return
	}
	d.upstream = s

	for i, sub := range d.subscribers {
		sub.OnSubscribe(&d.rails[i])
	}
	s.Request(int64(d.prefetch))
}

func (d *dispatcher[T]) OnNext(v T) {
	if d.done.Load() || d.allCancelled() {
		return
	}
	if err := d.queue.Enqueue(&v); err != nil {
		if iox.IsWouldBlock(err) {
			err = ErrMissingBackpressure
		}
		d.upstream.Cancel()
		d.OnError(err)
		return
	}
	d.drain()
}

func (d *dispatcher[T]) OnError(err error) {
	if d.done.Load() {
		OnErrorDropped(err)
		return
	}
	d.err = err
	d.done.Store(true)
	d.drain()
}

func (d *dispatcher[T]) OnComplete() {
	if d.done.Load() {
		return
	}
	d.done.Store(true)
	d.drain()
}

func (d *dispatcher[T]) allCancelled() bool {
	return int(d.cancelled.Load()) == len(d.rails)
}

// drain hands queued values to rails with outstanding demand, round-robin.
// Only one goroutine runs the loop; others record a missed pass in wip.
// An upstream error does not wait for demand: the queue is discarded and
// every live rail fails immediately.
func (d *dispatcher[T]) drain() {
	if d.wip.Add(1) != 1 {
		return
	}
	missed := uint32(1)
	n := len(d.rails)

	for {
		for {
			if d.allCancelled() {
				d.clear()
				return
			}

			done := d.done.Load()
			if done && d.err != nil {
				d.clear()
				d.terminate()
				return
			}
			if !d.hasPending {
				if v, err := d.queue.Dequeue(); err == nil {
					d.pending, d.hasPending = v, true
				}
			}
			if !d.hasPending {
				if done {
					d.terminate()
					return
				}
				break
			}

			if !d.deliver(n) {
				break
			}
		}

		missed = d.wip.Add(^(missed - 1))
		if missed == 0 {
			return
		}
	}
}

// deliver emits the pending value to the next rail with demand, starting at
// the round-robin cursor. Reports false when no rail can take it.
func (d *dispatcher[T]) deliver(n int) bool {
	for k := 0; k < n; k++ {
		r := &d.rails[d.index]
		d.index++
		if d.index == n {
			d.index = 0
		}
		if r.cancelled.Load() || r.requested.Load() == r.emitted {
			continue
		}

		v := d.pending
		var zero T
		d.pending, d.hasPending = zero, false
		r.emitted++
		d.subscribers[r.index].OnNext(v)

		d.consumed++
		if d.consumed == d.limit {
			d.consumed = 0
			d.upstream.Request(int64(d.limit))
		}
		return true
	}
	return false
}

// terminate delivers the upstream terminal signal to every rail still
// subscribed. wip is left raised so drain never runs again.
func (d *dispatcher[T]) terminate() {
	for i := range d.rails {
		if d.rails[i].cancelled.Load() {
			continue
		}
		if d.err != nil {
			d.subscribers[i].OnError(d.err)
		} else {
			d.subscribers[i].OnComplete()
		}
	}
}

// clear discards queued values once nobody can receive them.
func (d *dispatcher[T]) clear() {
	var zero T
	d.pending, d.hasPending = zero, false
	for {
		if _, err := d.queue.Dequeue(); err != nil {
			return
		}
	}
}
