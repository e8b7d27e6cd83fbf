// Package shell runs the interactive loop: a [Supervisor] starts one
// [Executor] iteration at a time on its own goroutine, and the [Console]
// executor reads a statement, publishes it as the active [Operation], and
// runs it on a [client.Conn].
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"tools.zach/dev/tshell/internal/client"
)

// ErrQuit is returned by an [Executor] when the user asked to leave the shell.
var ErrQuit = errors.New("quit")

// Executor runs one interactive command end to end on conn. Run must publish
// its operation while the query is in flight and clear it before returning.
type Executor interface {
	Run(ctx context.Context, conn client.Conn) error
}

// ///////////////////////////////////////////////
// Supervisor
// ///////////////////////////////////////////////

// Supervisor repeats executor iterations on a live connection. Iterations
// never overlap: the next one starts only after the previous goroutine has
// returned.
type Supervisor struct {
	exec Executor
	conn client.Conn

	// iterations counts completed executor runs.
	iterations atomic.Uint64
	// failures counts runs that returned an error other than [ErrQuit].
	failures atomic.Uint64
}

// NewSupervisor creates a Supervisor bound to conn.
func NewSupervisor(exec Executor, conn client.Conn) *Supervisor {
	return &Supervisor{exec: exec, conn: conn}
}

// Run loops until the executor returns [ErrQuit], which yields nil, or until
// ctx is done between iterations, which yields ctx.Err(). Operation errors
// are the executor's to report; Run only logs them and moves on.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.runOnce(ctx)
		n := s.iterations.Add(1)

		switch {
		case errors.Is(err, ErrQuit):
			slog.Info("shell quit", "iterations", n)
			return nil
		case err != nil:
			s.failures.Add(1)
			slog.Debug("operation failed", "iteration", n, "error", err)
		}
	}
}

// Iterations returns the number of completed executor runs.
func (s *Supervisor) Iterations() uint64 {
	return s.iterations.Load()
}

// Failures returns the number of executor runs that ended in an error.
func (s *Supervisor) Failures() uint64 {
	return s.failures.Load()
}

// runOnce starts one executor run on a fresh goroutine and waits for it to
// finish. A panic in the run is recovered on that goroutine and returned as
// an error, so one broken command does not take the shell down.
func (s *Supervisor) runOnce(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("operation panic", "error", r, "stack", string(debug.Stack()))
				done <- fmt.Errorf("operation panic: %v", r)
			}
		}()
		done <- s.exec.Run(ctx, s.conn)
	}()
	return <-done
}
