package shell

import (
	"context"
	"sync/atomic"

	"tools.zach/dev/tshell/internal/registry"
)

// Operation is one statement in flight. The console publishes it in the
// active-operation registry for as long as the query runs; the cancellation
// worker reaches it from there and calls [Operation.Stop].
type Operation struct {
	// SQL is the statement being executed.
	SQL string

	ctx    context.Context
	cancel context.CancelFunc

	// stopped records that Stop arrived while the operation was running.
	stopped atomic.Bool
	// finished is set when the registry destroys the operation.
	finished atomic.Bool
}

// newOperation derives the operation's context from parent.
func newOperation(parent context.Context, sql string) *Operation {
	ctx, cancel := context.WithCancel(parent)
	return &Operation{SQL: sql, ctx: ctx, cancel: cancel}
}

// Context is cancelled by [Operation.Stop] and when the operation is destroyed.
func (o *Operation) Context() context.Context {
	return o.ctx
}

// Stop asks the operation to halt. The query sees its context cancelled and
// returns at its next cancellation point. Stop on a finished operation does
// nothing.
func (o *Operation) Stop() {
	if o.finished.Load() {
		return
	}
	o.stopped.Store(true)
	o.cancel()
}

// Stopped reports whether Stop reached the operation while it was running.
func (o *Operation) Stopped() bool {
	return o.stopped.Load()
}

// NewRegistry returns the active-operation registry the console publishes
// into and the cancellation worker reads from.
func NewRegistry() *registry.Registry[*Operation] {
	return registry.New(destroyOperation)
}

// destroyOperation runs once the owner and every borrower have let go.
func destroyOperation(o *Operation) {
	o.finished.Store(true)
	o.cancel()
}
