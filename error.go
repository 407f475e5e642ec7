package railz

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Protocol violations.
var (
	// ErrDuplicateSubscription is reported when a Subscriber receives a
	// second OnSubscribe.
	ErrDuplicateSubscription = errors.New("railz: subscription already set")

	// ErrNilSubscription is reported when OnSubscribe is called with nil.
	ErrNilSubscription = errors.New("railz: nil subscription")

	// ErrNilValue terminates a rail whose transform produced a nil value.
	ErrNilValue = errors.New("railz: nil value")

	// ErrParallelismMismatch is wrapped by every *ParallelismError.
	ErrParallelismMismatch = errors.New("railz: subscriber count does not match parallelism")

	// ErrMissingBackpressure terminates rails whose upstream emitted more
	// values than were requested.
	ErrMissingBackpressure = errors.New("railz: upstream ignored back-pressure")
)

// ParallelismError rejects a Subscribe call with the wrong number of Subscribers.
type ParallelismError struct {
	Parallelism int
	Subscribers int
}

func (e *ParallelismError) Error() string {
	return fmt.Sprintf("railz: parallelism = %d, subscribers = %d", e.Parallelism, e.Subscribers)
}

// Unwrap returns ErrParallelismMismatch.
func (e *ParallelismError) Unwrap() error {
	return ErrParallelismMismatch
}

// InvalidDemandError reports a Request with a non-positive amount.
type InvalidDemandError struct {
	N int64
}

func (e *InvalidDemandError) Error() string {
	return fmt.Sprintf("railz: request amount must be positive, got %d", e.N)
}

// Severity is the outcome of Classify.
type Severity uint8

const (
	// Recoverable errors may be delivered as a rail's terminal OnError.
	Recoverable Severity = iota
	// Fatal errors must never become a stream signal; they escape as panics.
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Recoverable:
		return "recoverable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("Severity(%d)", s)
	}
}

// FatalKind enumerates the process-level failures that are never delivered
// through a rail.
type FatalKind uint8

const (
	// ResourceExhausted covers out-of-memory and out-of-handle conditions.
	ResourceExhausted FatalKind = iota + 1
	// StackExhausted covers unbounded recursion.
	StackExhausted
	// RuntimeCorrupted covers a broken runtime or environment invariant.
	RuntimeCorrupted
	// LinkageFailed covers missing or incompatible code at run time.
	LinkageFailed
	// ExecutionAborted covers a forced stop of the executing goroutine.
	ExecutionAborted
)

func (k FatalKind) String() string {
	switch k {
	case ResourceExhausted:
		return "resource exhausted"
	case StackExhausted:
		return "stack exhausted"
	case RuntimeCorrupted:
		return "runtime corrupted"
	case LinkageFailed:
		return "linkage failed"
	case ExecutionAborted:
		return "execution aborted"
	default:
		return fmt.Sprintf("FatalKind(%d)", k)
	}
}

// FatalError marks a failure as fatal. Wrap any error in it to have Classify
// report Fatal for the whole chain.
type FatalError struct {
	Err  error
	Kind FatalKind
}

// NewFatalError creates a FatalError of the given kind.
func NewFatalError(kind FatalKind, err error) *FatalError {
	return &FatalError{Kind: kind, Err: err}
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return "railz: fatal: " + e.Kind.String()
	}
	return fmt.Sprintf("railz: fatal: %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// PanicError carries a panic recovered while applying a rail transform.
// It is the transport layer stripped by Unwrap.
//
//nolint:govet // fieldalignment: struct layout optimized for readability
type PanicError struct {
	// Value is the value passed to panic.
	Value any

	// Err is Value when Value is an error, nil otherwise.
	Err error

	// Rail is the rail index, or -1 when unknown.
	Rail int

	// Stack is the stack of the panicking goroutine.
	Stack []byte
}

// NewPanicError wraps a recovered panic value. Must be called from the
// deferred function that recovered it for Stack to be meaningful.
func NewPanicError(rail int, value any) *PanicError {
	pe := &PanicError{Value: value, Rail: rail, Stack: debug.Stack()}
	if err, ok := value.(error); ok {
		pe.Err = err
	}
	return pe
}

func (e *PanicError) Error() string {
	if e.Rail >= 0 {
		return fmt.Sprintf("railz: panic on rail %d: %v", e.Rail, e.Value)
	}
	return fmt.Sprintf("railz: panic: %v", e.Value)
}

// Unwrap returns the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	return e.Err
}

// Classify partitions errors into Fatal and Recoverable. An error is Fatal
// iff its chain contains a *FatalError. nil is Recoverable.
func Classify(err error) Severity {
	var fe *FatalError
	if errors.As(err, &fe) {
		return Fatal
	}
	return Recoverable
}

// ThrowIfFatal panics with err when Classify reports it as Fatal.
func ThrowIfFatal(err error) {
	if Classify(err) == Fatal {
		panic(err)
	}
}

// Unwrap strips the *PanicError layers added while a failure travelled
// through a rail and returns the original cause. A panic whose value was not
// an error has no deeper cause, so its *PanicError is returned as is.
func Unwrap(err error) error {
	for {
		pe, ok := err.(*PanicError)
		if !ok || pe.Err == nil {
			return err
		}
		err = pe.Err
	}
}
