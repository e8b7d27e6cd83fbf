package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"tools.zach/dev/tshell/internal/cancel"
	"tools.zach/dev/tshell/internal/client"
	"tools.zach/dev/tshell/internal/config"
	"tools.zach/dev/tshell/internal/history"
	"tools.zach/dev/tshell/internal/logger"
	"tools.zach/dev/tshell/internal/registry"
	"tools.zach/dev/tshell/internal/shell"
)

// ///////////////////////////////////////////////
// App
// ///////////////////////////////////////////////

// app wires the cancellation core to the console and the REST connection.
type app struct {
	data   DataPaths
	level  *slog.LevelVar
	stderr io.Writer

	reg    *registry.Registry[*shell.Operation]
	events *cancel.Event
	bridge *cancel.Bridge
	worker *cancel.Worker[*shell.Operation]
	conn   *client.REST
	sup    *shell.Supervisor
}

// newApp builds every component; nothing runs until [app.run]. exit is
// called by the worker under the exit policy.
func newApp(cfg *config.Config, data DataPaths, level *slog.LevelVar, in io.Reader, out, stderr io.Writer, exit func(int)) (*app, error) {
	conn, err := client.NewREST(cfg.ClientOptions())
	if err != nil {
		return nil, fmt.Errorf("connection settings: %w", err)
	}

	consoleOpts := shell.ConsoleOptions{Prompt: cfg.Shell.Prompt}
	if cfg.History.Enabled {
		h, err := history.New(data.History(), cfg.History.MaxEntries, cfg.History.Ignore)
		if err != nil {
			return nil, err
		}
		consoleOpts.History = h
	}

	a := &app{
		data:   data,
		level:  level,
		stderr: stderr,
		reg:    shell.NewRegistry(),
		events: cancel.NewEvent(),
		conn:   conn,
	}
	a.bridge = cancel.NewBridge(a.events, cancel.DefaultSignals()...)

	wopts := cfg.CancelOptions()
	wopts.Out = out
	wopts.Exit = exit
	a.worker = cancel.NewWorker(a.events, a.reg, wopts)

	a.sup = shell.NewSupervisor(shell.NewConsole(in, out, a.reg, consoleOpts), conn)
	return a, nil
}

// run installs the signal bridge, starts the worker and the config follower,
// and runs the supervisor until the user quits. A bridge that cannot be
// installed is fatal: without it ctrl+c would kill the shell outright.
func (a *app) run(ctx context.Context) error {
	if err := a.bridge.Install(); err != nil {
		return fmt.Errorf("install signal handlers: %w", err)
	}
	defer a.bridge.Stop()

	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	workerDone := make(chan error, 1)
	go func() { workerDone <- a.worker.Run(ctx) }()

	watcher := config.NewWatcher(a.data.Config())
	defer watcher.Close()
	if watcher.Polling() {
		slog.Info("using polling mode for config watching")
	}
	go config.Follow(ctx, watcher, a.data.Config(), a.apply)

	err := a.sup.Run(ctx)

	cancelRun()
	if werr := <-workerDone; werr != nil && !errors.Is(werr, context.Canceled) {
		slog.Warn("cancel worker ended", "error", werr)
	}
	return err
}

// apply takes the hot-reloadable settings from a reloaded config. Connection
// and history changes need a restart.
func (a *app) apply(cfg *config.Config) {
	p := cfg.CancelOptions().Policy
	if old := a.worker.Policy(); old != p {
		a.worker.SetPolicy(p)
		slog.Info("cancel policy changed", "from", string(old), "to", string(p))
	}
	if lvl, err := logger.ParseLevel(cfg.Log.Level); err == nil && lvl != a.level.Level() {
		a.level.Set(lvl)
		slog.Info("log level changed", "level", cfg.Log.Level)
	}
}

// close releases the connection.
func (a *app) close() {
	if err := a.conn.Close(); err != nil {
		fmt.Fprintf(a.stderr, "warning: close connection: %v\n", err)
	}
}
