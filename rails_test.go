package railz_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"

	"github.com/zoobzio/railz"
	railztest "github.com/zoobzio/railz/testing"
)

func quietLogs(t *testing.T) {
	t.Helper()
	railz.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { railz.SetLogger(nil) })
}

func TestFromPublishers_RunsEveryRail(t *testing.T) {
	group := railz.FromPublishers(
		railz.FromSlice(1, 2),
		railz.FromSlice(3),
		railz.FromSlice(4, 5, 6),
	)
	mapped := railz.Map(group, double)
	subs := subscribe[int](t, mapped, railz.Unbounded)

	if err := group.Wait(); err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}
	if !railztest.AwaitAll(t, subs, time.Second) {
		return
	}

	railztest.AssertValues(t, subs[0], 2, 4)
	railztest.AssertValues(t, subs[1], 6)
	railztest.AssertValues(t, subs[2], 8, 10, 12)
	for _, s := range subs {
		railztest.AssertComplete(t, s)
		railztest.AssertTerminatedOnce(t, s)
	}
}

func TestFromPublishers_FailureIsLocalToRail(t *testing.T) {
	group := railz.FromPublishers(
		railz.FromSlice(1),
		railz.FromSlice(5, 6),
		railz.FromSlice(3),
	)
	mapped := railz.Map(group, func(n int) (int, error) {
		if n == 5 {
			return 0, errBoom
		}
		return n * 2, nil
	})
	subs := subscribe[int](t, mapped, railz.Unbounded)

	if err := group.Wait(); err != nil {
		t.Fatalf("recoverable failures must not surface from Wait: %v", err)
	}

	railztest.AssertValues(t, subs[0], 2)
	railztest.AssertComplete(t, subs[0])
	railztest.AssertValues(t, subs[1])
	railztest.AssertError(t, subs[1], errBoom)
	railztest.AssertValues(t, subs[2], 6)
	railztest.AssertComplete(t, subs[2])
}

func TestFromPublishers_FatalEscapeReturnedByWait(t *testing.T) {
	quietLogs(t)

	fatal := railz.NewFatalError(railz.ResourceExhausted, errors.New("out of memory"))
	group := railz.FromPublishers(
		railz.FromSlice(1),
		railz.FromSlice(2),
		railz.FromSlice(3),
	)
	mapped := railz.Map(group, func(n int) (int, error) {
		if n == 2 {
			return 0, fatal
		}
		return n, nil
	})
	subs := subscribe[int](t, mapped, railz.Unbounded)

	err := group.Wait()
	var pe *railz.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError from Wait, got %v", err)
	}
	if pe.Rail != 1 {
		t.Errorf("expected escape on rail 1, got %d", pe.Rail)
	}
	if !errors.Is(err, fatal) || railz.Classify(err) != railz.Fatal {
		t.Errorf("expected fatal cause, got %v", err)
	}

	if subs[1].IsTerminated() {
		t.Error("fatal error must not become a terminal signal")
	}
	railztest.AssertComplete(t, subs[0])
	railztest.AssertComplete(t, subs[2])
}

func TestFromPublishers_Stats(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := clockz.NewFakeClockAt(start)

	group := railz.FromPublishers(
		railz.FromSlice(1, 2, 3),
		railz.Fail[int](errBoom),
	).WithClock(clock)

	if group.Stats() != nil {
		t.Error("expected no stats before Subscribe")
	}

	subscribe[int](t, group, railz.Unbounded)
	if err := group.Wait(); err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}

	stats := group.Stats()
	if len(stats) != 2 {
		t.Fatalf("expected 2 rails, got %d", len(stats))
	}

	if stats[0].Values != 3 || stats[0].Err != nil || !stats[0].Done() {
		t.Errorf("rail 0: unexpected stats %+v", stats[0])
	}
	if stats[1].Values != 0 || !errors.Is(stats[1].Err, errBoom) || !stats[1].Done() {
		t.Errorf("rail 1: unexpected stats %+v", stats[1])
	}
	for _, s := range stats {
		if !s.Started.Equal(start) || !s.Finished.Equal(start) {
			t.Errorf("rail %d: expected fake clock timestamps, got %v / %v", s.Rail, s.Started, s.Finished)
		}
	}
}

func TestFromPublishers_Configuration(t *testing.T) {
	group := railz.FromPublishers(railz.Empty[int](), railz.Empty[int]())

	if group.Parallelism() != 2 {
		t.Errorf("expected parallelism 2, got %d", group.Parallelism())
	}
	if !group.Ordered() {
		t.Error("expected ordered by default")
	}
	if group.Name() != "rails" {
		t.Errorf("expected default name, got %q", group.Name())
	}

	group.WithOrdered(false).WithName("shards")
	if group.Ordered() || group.Name() != "shards" {
		t.Error("fluent configuration not applied")
	}
}

func TestFromPublishers_RejectsWrongSubscriberCount(t *testing.T) {
	upstream := railztest.NewManualPublisher[int]()
	group := railz.FromPublishers[int](upstream, upstream)
	subs := railztest.NewTestSubscribers[int](1, railz.Unbounded)

	err := group.Subscribe(railztest.AsSubscribers(subs))
	if !errors.Is(err, railz.ErrParallelismMismatch) {
		t.Fatalf("expected parallelism mismatch, got %v", err)
	}
	if err := group.Wait(); err != nil {
		t.Errorf("no rail should have started, got %v", err)
	}
	if upstream.Subscribes() != 0 {
		t.Error("upstream must not be subscribed")
	}
	railztest.AssertError(t, subs[0], railz.ErrParallelismMismatch)
}

func TestFromPublishers_StatsRecordCancellation(t *testing.T) {
	group := railz.FromPublishers(railz.FromSlice(1, 2, 3), railz.FromSlice(4))
	subs := railztest.NewTestSubscribers[int](2, 1)
	if err := group.Subscribe(railztest.AsSubscribers(subs)); err != nil {
		t.Fatalf("unexpected subscribe error: %v", err)
	}
	if err := group.Wait(); err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}

	subs[0].Cancel()

	stats := group.Stats()
	if !stats[0].Cancelled || stats[0].Done() || stats[0].Values != 1 {
		t.Errorf("rail 0: unexpected stats %+v", stats[0])
	}
	if stats[1].Cancelled || !stats[1].Done() {
		t.Errorf("rail 1: unexpected stats %+v", stats[1])
	}
}

func TestFromPublishers_ID(t *testing.T) {
	group := railz.FromPublishers(railz.FromSlice(1), railz.FromSlice(2))
	if group.ID() != uuid.Nil {
		t.Errorf("expected nil id before Subscribe, got %v", group.ID())
	}

	subscribe[int](t, group, railz.Unbounded)
	if err := group.Wait(); err != nil {
		t.Fatalf("unexpected wait error: %v", err)
	}
	if group.ID() == uuid.Nil {
		t.Error("expected an id after Subscribe")
	}
}
