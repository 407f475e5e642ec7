package railz

// EmptySubscription ignores every Request and Cancel. It is handed to
// Subscribers that are terminated before any upstream exists.
var EmptySubscription Subscription = emptySubscription{}

type emptySubscription struct{}

func (emptySubscription) Request(int64) {}
func (emptySubscription) Cancel()       {}

// Error subscribes s to nothing and fails it immediately.
func Error[T any](s Subscriber[T], err error) {
	s.OnSubscribe(EmptySubscription)
	s.OnError(err)
}

// Complete subscribes s to nothing and completes it immediately.
func Complete[T any](s Subscriber[T]) {
	s.OnSubscribe(EmptySubscription)
	s.OnComplete()
}
