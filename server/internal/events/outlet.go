package events

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrClosed is returned by Outlet.Recv once the subscriber has closed the
// outlet and every queued value has been consumed.
var ErrClosed = errors.New("events: outlet closed")

// Outlet is the subscriber end of a subscription. Values are queued without
// bound, so a slow reader accumulates backlog instead of stalling the
// publisher.
//
// The reader owns Close. After Close the next Publish on the owning source
// fails to deliver to this outlet and prunes it.
type Outlet[V any] struct {
	id uuid.UUID

	mu     sync.Mutex
	queue  []V
	closed bool

	// ready holds at most one token while queue is non-empty.
	ready chan struct{}
	done  chan struct{}
}

func newOutlet[V any]() *Outlet[V] {
	return &Outlet[V]{
		id:    uuid.New(),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// ID returns the subscriber identifier generated at subscribe time.
func (o *Outlet[V]) ID() uuid.UUID { return o.id }

// send enqueues v. It returns false if the reader has closed the outlet.
func (o *Outlet[V]) send(v V) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.queue = append(o.queue, v)
	o.signal()
	return true
}

// signal must be called with o.mu held.
func (o *Outlet[V]) signal() {
	select {
	case o.ready <- struct{}{}:
	default:
	}
}

// Ready returns a channel that receives a token whenever queued values are
// waiting. Pair it with Drain in a select loop.
func (o *Outlet[V]) Ready() <-chan struct{} { return o.ready }

// Done is closed when the outlet is closed.
func (o *Outlet[V]) Done() <-chan struct{} { return o.done }

// Drain removes and returns every queued value in publish order.
func (o *Outlet[V]) Drain() []V {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.queue
	o.queue = nil
	return out
}

// Len returns the number of values waiting to be read.
func (o *Outlet[V]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Recv blocks the calling goroutine until a value is available, the outlet
// is closed, or ctx is done.
func (o *Outlet[V]) Recv(ctx context.Context) (V, error) {
	for {
		if v, ok := o.pop(); ok {
			return v, nil
		}
		select {
		case <-o.ready:
		case <-o.done:
			if v, ok := o.pop(); ok {
				return v, nil
			}
			var zero V
			return zero, ErrClosed
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}
}

func (o *Outlet[V]) pop() (V, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		var zero V
		return zero, false
	}
	v := o.queue[0]
	var zero V
	o.queue[0] = zero
	o.queue = o.queue[1:]
	if len(o.queue) > 0 {
		o.signal()
	}
	return v, true
}

// Close detaches the reader. It is safe to call more than once.
func (o *Outlet[V]) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.done)
}

// Closed reports whether Close has been called.
func (o *Outlet[V]) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
