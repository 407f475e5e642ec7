package railz

import (
	"sync/atomic"
	"time"
)

// atomicTime holds a time.Time that is written by a rail goroutine and read
// by Stats callers. Stored as Unix nanoseconds; zero means unset.
type atomicTime struct {
	nanos atomic.Int64
}

func (at *atomicTime) Store(t time.Time) {
	at.nanos.Store(t.UnixNano())
}

// Load returns the zero time when nothing was stored.
func (at *atomicTime) Load() time.Time {
	nanos := at.nanos.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}
