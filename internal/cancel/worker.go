package cancel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"tools.zach/dev/tshell/internal/registry"
)

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Stopper is an operation that can be asked to halt from another goroutine.
// Stop must be safe to call concurrently with the operation itself and must
// be a no-op once the operation has finished.
type Stopper interface {
	Stop()
}

// Waiter is the event source a [Worker] blocks on. [*Event] implements it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Options configures a [Worker]. Zero values fall back to the defaults noted
// on each field.
type Options struct {
	// Policy is the initial cancel policy. Default [PolicyStop].
	Policy Policy
	// RetryMin is the first backoff delay after a failed wait. Default 10ms.
	RetryMin time.Duration
	// RetryMax caps the backoff delay. Default 1s.
	RetryMax time.Duration
	// WarnAfter logs a warning every WarnAfter consecutive wait failures.
	// Default 10.
	WarnAfter int
	// Out receives the [PolicyExit] notice. Default os.Stdout.
	Out io.Writer
	// Exit terminates the process under [PolicyExit]. Default os.Exit.
	Exit func(code int)
}

// Stats is a snapshot of a [Worker]'s counters.
type Stats struct {
	// Handled counts consumed cancel events.
	Handled uint64
	// Stopped counts Stop calls delivered to an operation.
	Stopped uint64
	// Idle counts events that found no published operation.
	Idle uint64
	// Stale counts events whose operation finished before it could be acquired.
	Stale uint64
	// WaitFailures counts failed waits that were retried.
	WaitFailures uint64
}

// Worker is the long-lived goroutine that turns cancel events into Stop calls
// on the operation published in a registry.
type Worker[T Stopper] struct {
	events Waiter
	reg    *registry.Registry[T]
	opts   Options

	// policy holds the current [Policy]; swapped by [Worker.SetPolicy].
	policy atomic.Value

	handled      atomic.Uint64
	stopped      atomic.Uint64
	idle         atomic.Uint64
	stale        atomic.Uint64
	waitFailures atomic.Uint64
}

// NewWorker creates a Worker reading events and stopping operations in reg.
func NewWorker[T Stopper](events Waiter, reg *registry.Registry[T], opts Options) *Worker[T] {
	if opts.Policy == "" {
		opts.Policy = PolicyStop
	}
	if opts.RetryMin <= 0 {
		opts.RetryMin = 10 * time.Millisecond
	}
	if opts.RetryMax < opts.RetryMin {
		opts.RetryMax = max(time.Second, opts.RetryMin)
	}
	if opts.WarnAfter <= 0 {
		opts.WarnAfter = 10
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	w := &Worker[T]{events: events, reg: reg, opts: opts}
	w.policy.Store(opts.Policy)
	return w
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Policy returns the current cancel policy.
func (w *Worker[T]) Policy() Policy {
	return w.policy.Load().(Policy)
}

// SetPolicy replaces the cancel policy. It takes effect on the next event.
func (w *Worker[T]) SetPolicy(p Policy) {
	w.policy.Store(p)
}

// Stats returns a snapshot of the worker's counters.
func (w *Worker[T]) Stats() Stats {
	return Stats{
		Handled:      w.handled.Load(),
		Stopped:      w.stopped.Load(),
		Idle:         w.idle.Load(),
		Stale:        w.stale.Load(),
		WaitFailures: w.waitFailures.Load(),
	}
}

// Run waits for cancel events and handles them one at a time until ctx is
// done, then returns ctx.Err(). A failed wait is retried after a bounded
// exponential backoff; it never ends the loop, since nothing would cancel
// queries for the rest of the process if it did.
func (w *Worker[T]) Run(ctx context.Context) error {
	failures := 0
	for {
		err := w.events.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			w.waitFailures.Add(1)
			if failures%w.opts.WarnAfter == 0 {
				slog.Warn("cancel wait keeps failing", "consecutive", failures, "error", err)
			} else {
				slog.Debug("cancel wait failed, retrying", "attempt", failures, "error", err)
			}
			delay := retryablehttp.DefaultBackoff(w.opts.RetryMin, w.opts.RetryMax, failures-1, nil)
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
			continue
		}
		failures = 0
		w.handle()
	}
}

// ///////////////////////////////////////////////
// Internal helpers
// ///////////////////////////////////////////////

// handle processes one consumed event. Under [PolicyStop] it claims the
// published ID, acquires the operation behind it, stops it and releases it.
// The operation may finish at any point in between; acquire then fails and
// the event is dropped.
func (w *Worker[T]) handle() {
	w.handled.Add(1)

	if w.Policy() == PolicyExit {
		fmt.Fprintln(w.opts.Out, "\nReceive ctrl+c or other signal, quit shell.")
		w.opts.Exit(0)
		return
	}

	id := w.reg.Clear()
	if id == registry.None {
		w.idle.Add(1)
		slog.Debug("cancel requested with no active operation")
		return
	}

	op, ok := w.reg.Acquire(id)
	if !ok {
		w.stale.Add(1)
		slog.Debug("cancel requested for finished operation", "id", int64(id))
		return
	}
	defer w.reg.Release(id)

	w.stop(id, op)
}

// stop calls op.Stop, containing a panic so the worker outlives a faulty
// operation.
func (w *Worker[T]) stop(id registry.ID, op T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("operation stop panic", "id", int64(id), "error", r)
		}
	}()
	op.Stop()
	w.stopped.Add(1)
	slog.Info("stop requested", "id", int64(id))
}

// sleepCtx sleeps for d or until ctx is done, reporting whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
