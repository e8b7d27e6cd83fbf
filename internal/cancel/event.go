// Package cancel turns asynchronous OS signals into cooperative cancellation
// of the operation a shell is running.
//
// The pieces, in delivery order:
//
//   - [Bridge] subscribes to the cancel signals and does nothing but
//     [Event.Post] for each delivery.
//   - [Event] is a counting wake-up with no payload; any number of posts
//     collapse into one pending cancellation.
//   - [Worker] waits on the event forever and stops whatever operation is
//     published in a [registry.Registry] at the moment it wakes.
package cancel

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrSpuriousWake is returned by [Event.Wait] when it was woken but another
// waiter, or an earlier wake, had already consumed the pending count.
var ErrSpuriousWake = errors.New("cancel: woke with no pending event")

// ///////////////////////////////////////////////
// Event
// ///////////////////////////////////////////////

// Event is a counting signal. [Event.Post] never blocks, never allocates and
// takes no lock, so it is safe to call from any goroutine at any time.
type Event struct {
	// pending counts posts not yet consumed by [Event.Wait].
	pending atomic.Uint64
	// wake is buffered to 1 so back-to-back posts coalesce into one wake-up.
	wake chan struct{}
}

// NewEvent creates an Event with nothing pending.
func NewEvent() *Event {
	return &Event{wake: make(chan struct{}, 1)}
}

// Post records one cancellation request.
func (e *Event) Post() {
	e.pending.Add(1)
	select {
	case e.wake <- struct{}{}:
	default:
		// A wake-up is already queued; it will see this post too.
	}
}

// Pending returns the number of posts not yet consumed.
func (e *Event) Pending() uint64 {
	return e.pending.Load()
}

// Wait blocks until a post is available or ctx is done. A successful Wait
// consumes every pending post at once. It returns [ErrSpuriousWake] when the
// wake-up it received had no posts left behind it, and ctx.Err() when ctx
// ends first.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.wake:
	}
	if e.pending.Swap(0) == 0 {
		return ErrSpuriousWake
	}
	return nil
}
