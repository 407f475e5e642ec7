package railz

import "fmt"

// RailState is the lifecycle position of a single rail.
// Cancellation is tracked separately: a rail may be cancelled while Active.
type RailState uint8

const (
	// RailUnsubscribed is the state before OnSubscribe was accepted.
	RailUnsubscribed RailState = iota
	// RailActive accepts OnNext and exactly one terminal signal.
	RailActive
	// RailTerminated rejects everything; a late OnError is dropped.
	RailTerminated
)

func (s RailState) String() string {
	switch s {
	case RailUnsubscribed:
		return "unsubscribed"
	case RailActive:
		return "active"
	case RailTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("RailState(%d)", s)
	}
}
