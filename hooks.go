package railz

import (
	"log/slog"
	"sync/atomic"

	"code.hybscloud.com/atomix"
)

// Process-wide hooks. Stored in atomics so tests may swap them while rails
// run on other goroutines. droppedCount guards no other memory, so the
// assembly atomics of atomix serve it.
var (
	onErrorDropped atomic.Pointer[func(error)]
	droppedCount   atomix.Uint64
	logger         atomic.Pointer[slog.Logger]
)

// OnErrorDropped reports an error that cannot be delivered because its rail
// already reached a terminal state. The error goes to the sink installed with
// SetOnErrorDropped, or is logged when none is installed.
func OnErrorDropped(err error) {
	droppedCount.Add(1)

	if fn := onErrorDropped.Load(); fn != nil {
		(*fn)(err)
		return
	}
	logDropped(err)
}

// logDropped is the default dropped-error sink.
func logDropped(err error) {
	logs().Error("railz: error dropped", "error", err)
}

// SetOnErrorDropped replaces the dropped-error sink and returns a function
// restoring the previous one. A nil fn reinstates the default sink.
//
//	restore := railz.SetOnErrorDropped(func(err error) { dropped = append(dropped, err) })
//	defer restore()
func SetOnErrorDropped(fn func(error)) (restore func()) {
	var next *func(error)
	if fn != nil {
		next = &fn
	}
	prev := onErrorDropped.Swap(next)
	return func() {
		onErrorDropped.Store(prev)
	}
}

// ResetOnErrorDropped reinstates the default sink, which logs through the
// package logger.
func ResetOnErrorDropped() {
	onErrorDropped.Store(nil)
}

// DroppedCount returns the number of errors reported through OnErrorDropped
// since the process started.
func DroppedCount() uint64 {
	return droppedCount.Load()
}

// SetLogger replaces the logger used for diagnostics. nil restores
// slog.Default().
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

func logs() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}
