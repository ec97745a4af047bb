package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/clinicq/clinicq/internal/platform/websocket"
)

// ErrSubscriptionUnavailable means no live updates can be received. Callers
// log it and carry on without them.
var ErrSubscriptionUnavailable = errors.New("realtime subscription unavailable")

// Transport opens subscriptions to a broadcast topic. Events for one
// subscription are delivered to handle from a single goroutine, in order.
type Transport interface {
	Subscribe(ctx context.Context, topic string, handle func(websocket.Event)) (Subscription, error)
}

// Subscription is a live topic subscription. Close unsubscribes and leaves
// the channel; calling it more than once is safe.
type Subscription interface {
	Close() error
	// Done is closed once no more events will be delivered, whether the
	// subscription was closed or the connection was lost.
	Done() <-chan struct{}
	// Err is nil after Close and wraps ErrSubscriptionUnavailable when the
	// subscription ended on its own. It is only meaningful once Done is closed.
	Err() error
}

// ending records how a subscription ended and closes its done channel once.
type ending struct {
	once sync.Once
	done chan struct{}

	mu  sync.Mutex
	err error
}

func newEnding() *ending {
	return &ending{done: make(chan struct{})}
}

func (e *ending) finish(err error) {
	e.once.Do(func() {
		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
		close(e.done)
	})
}

func (e *ending) Done() <-chan struct{} { return e.done }

func (e *ending) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}
