package railz

import (
	"sync/atomic"
	"time"

	"code.hybscloud.com/atomix"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RailStats is a snapshot of one rail of a RailGroup.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type RailStats struct {
	// Rail is the rail index.
	Rail int

	// Values is the number of values delivered so far.
	Values int64

	// Started is when the rail's goroutine subscribed upstream.
	Started time.Time

	// Finished is when the terminal signal was delivered; zero while running.
	Finished time.Time

	// Err is the terminal error, nil on completion or while running.
	Err error

	// Cancelled reports whether the rail's subscriber cancelled upstream.
	Cancelled bool
}

// Done reports whether the rail delivered its terminal signal.
func (s RailStats) Done() bool {
	return !s.Finished.IsZero()
}

// RailGroup is a ParallelPublisher made of one independent Publisher per
// rail. Each rail is subscribed on its own goroutine, so rails backed by
// synchronous publishers run fully in parallel.
//
// The goroutine of each rail is the boundary where escaping panics (fatal
// errors thrown out of OnNext) are caught. They are logged and returned by
// Wait; they never become stream signals.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type RailGroup[T any] struct {
	rails   []Publisher[T]
	clock   Clock
	name    string
	ordered bool
	group   errgroup.Group
	stats   atomic.Pointer[[]railStats]
	lastID  atomic.Pointer[uuid.UUID]
}

// railStats is the live, atomically updated form of RailStats.
type railStats struct {
	started   atomicTime
	finished  atomicTime
	values    atomix.Int64
	err       atomic.Pointer[railErr]
	cancelled atomic.Bool
}

type railErr struct {
	err error
}

// FromPublishers creates a RailGroup with one rail per publisher.
//
// When to use:
//   - Sources that are already partitioned (files, shards, partitions)
//   - Running N synchronous sequences concurrently
//   - Tests that need true per-rail goroutines
//
// Example:
//
//	group := railz.FromPublishers(shard0, shard1, shard2).WithName("shards")
//	parsed := railz.Map(group, parseRecord)
//	if err := parsed.Subscribe(subscribers); err != nil {
//		return err
//	}
//	if err := group.Wait(); err != nil {
//		return err // a rail escaped with a fatal panic
//	}
//
// Default configuration:
//   - Ordered: true (each rail is a sequence of its own)
//   - Clock: RealClock
//   - Name: "rails"
func FromPublishers[T any](rails ...Publisher[T]) *RailGroup[T] {
	return &RailGroup[T]{
		rails:   rails,
		clock:   RealClock,
		name:    "rails",
		ordered: true,
	}
}

// WithOrdered sets the ordering flag reported to composed operators.
func (g *RailGroup[T]) WithOrdered(ordered bool) *RailGroup[T] {
	g.ordered = ordered
	return g
}

// WithName sets a custom name for this group.
func (g *RailGroup[T]) WithName(name string) *RailGroup[T] {
	g.name = name
	return g
}

// WithClock sets the clock used for rail timestamps.
// Use RealClock for production, a fake clock for deterministic tests.
func (g *RailGroup[T]) WithClock(clock Clock) *RailGroup[T] {
	g.clock = clock
	return g
}

// Name returns the group name.
func (g *RailGroup[T]) Name() string {
	return g.name
}

// Parallelism returns the number of rails.
func (g *RailGroup[T]) Parallelism() int {
	return len(g.rails)
}

// Ordered returns the ordering flag.
func (g *RailGroup[T]) Ordered() bool {
	return g.ordered
}

// ID returns the id of the latest accepted Subscribe, as it appears in log
// lines, or uuid.Nil before the first one.
func (g *RailGroup[T]) ID() uuid.UUID {
	if id := g.lastID.Load(); id != nil {
		return *id
	}
	return uuid.Nil
}

// Subscribe starts one goroutine per rail, each subscribing its subscriber to
// that rail's publisher.
func (g *RailGroup[T]) Subscribe(subscribers []Subscriber[T]) error {
	if err := ValidateSubscribers(len(g.rails), subscribers); err != nil {
		return err
	}

	uid := uuid.New()
	id := uid.String()
	stats := make([]railStats, len(g.rails))
	g.stats.Store(&stats)
	g.lastID.Store(&uid)
	logs().Debug("railz: rail group subscribe", "group", g.name, "id", id, "rails", len(g.rails))

	for i := range g.rails {
		observed := &railObserver[T]{actual: subscribers[i], stats: &stats[i], clock: g.clock}
		g.group.Go(func() error {
			return g.run(id, i, observed)
		})
	}
	return nil
}

// run subscribes one rail and converts an escaping panic into an error.
func (g *RailGroup[T]) run(id string, rail int, s *railObserver[T]) (err error) {
	defer func() {
		if p := recover(); p != nil {
			pe := NewPanicError(rail, p)
			logs().Error("railz: rail escaped",
				"group", g.name, "id", id, "rail", rail, "panic", p, "severity", Classify(pe).String())
			err = pe
		}
	}()

	s.stats.started.Store(g.clock.Now())
	g.rails[rail].Subscribe(s)
	return nil
}

// Wait blocks until every rail goroutine returned from its upstream Subscribe
// call, and returns the first escaped panic as a *PanicError.
//
// For synchronous publishers this means every rail has terminated; an
// asynchronous publisher may keep signalling after its Subscribe returned.
func (g *RailGroup[T]) Wait() error {
	return g.group.Wait()
}

// Stats returns a snapshot of every rail of the latest subscription.
func (g *RailGroup[T]) Stats() []RailStats {
	p := g.stats.Load()
	if p == nil {
		return nil
	}
	live := *p
	out := make([]RailStats, len(live))
	for i := range live {
		out[i] = RailStats{
			Rail:      i,
			Values:    live[i].values.Load(),
			Started:   live[i].started.Load(),
			Finished:  live[i].finished.Load(),
			Cancelled: live[i].cancelled.Load(),
		}
		if e := live[i].err.Load(); e != nil {
			out[i].Err = e.err
		}
	}
	return out
}

// railObserver records rail statistics and passes every signal through.
type railObserver[T any] struct {
	actual Subscriber[T]
	stats  *railStats
	clock  Clock
}

func (o *railObserver[T]) OnSubscribe(s Subscription) {
	o.actual.OnSubscribe(&railSubscription{Subscription: s, stats: o.stats})
}

func (o *railObserver[T]) OnNext(v T) {
	o.stats.values.Add(1)
	o.actual.OnNext(v)
}

func (o *railObserver[T]) OnError(err error) {
	o.stats.err.Store(&railErr{err: err})
	o.stats.finished.Store(o.clock.Now())
	o.actual.OnError(err)
}

func (o *railObserver[T]) OnComplete() {
	o.stats.finished.Store(o.clock.Now())
	o.actual.OnComplete()
}

// railSubscription records cancellation on its way upstream.
type railSubscription struct {
	Subscription
	stats *railStats
}

func (s *railSubscription) Cancel() {
	s.stats.cancelled.Store(true)
	s.Subscription.Cancel()
}
