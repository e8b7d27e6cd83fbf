// Package main implements tshell, an interactive SQL shell whose running
// query can be interrupted with ctrl+c without leaving the shell.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	rootpkg "tools.zach/dev/tshell"
	"tools.zach/dev/tshell/internal/atomicfile"
	"tools.zach/dev/tshell/internal/config"
	"tools.zach/dev/tshell/internal/logger"
	"tools.zach/dev/tshell/internal/paths"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//
//	-X main.version=$(VERSION)
//
// When ldflags are not set, resolveVersion reads the VCS info that Go embeds.
var version = "dev"

// resolveVersion returns the build version string, or "dev+<hash>" built from
// the embedded VCS revision when no version was set at link time.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Flags
// ///////////////////////////////////////////////

// options holds the parsed command line.
type options struct {
	dataDir     string
	dumpConfig  bool
	showVersion bool

	// Connection overrides; applied only for flags given explicitly.
	host     string
	port     int
	user     string
	password string
	database string
	set      map[string]bool
}

// parseFlags parses args (without the program name).
func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet(paths.BinaryName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{set: map[string]bool{}}
	fs.StringVar(&opts.dataDir, "data-dir", defaultDataDir(), "Data directory for config, history and logs")
	fs.BoolVar(&opts.dumpConfig, "dump-config", false, "Print the effective configuration and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Print the version and exit")
	fs.StringVar(&opts.host, "h", "", "Server host")
	fs.IntVar(&opts.port, "P", 0, "Server REST port")
	fs.StringVar(&opts.user, "u", "", "User name")
	fs.StringVar(&opts.password, "p", "", "Password")
	fs.StringVar(&opts.database, "d", "", "Default database")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	return opts, nil
}

// defaultDataDir returns ~/.tshell, or ./.tshell when the home directory
// cannot be determined.
func defaultDataDir() string {
	d, err := paths.Default()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return d.Root
}

// ///////////////////////////////////////////////
// Configuration
// ///////////////////////////////////////////////

// loadConfig seeds the config file on first run, loads it, then applies the
// environment and finally the command line, each overriding the last.
func loadConfig(data DataPaths, opts *options, getenv func(string) string) (*config.Config, error) {
	if err := data.Ensure(); err != nil {
		return nil, err
	}
	if _, err := atomicfile.Seed(data.Config(), rootpkg.DefaultConfigTOML, 0o600); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}

	cfg, err := config.Load(data.Config())
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}

	c := &cfg.Connection
	if opts.set["h"] {
		c.Host = opts.host
	}
	if opts.set["P"] {
		c.Port = opts.port
	}
	if opts.set["u"] {
		c.User = opts.user
	}
	if opts.set["p"] {
		c.Password = opts.password
	}
	if opts.set["d"] {
		c.Database = opts.database
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, os.Getenv))
}

// run is main with its process dependencies injected. It returns the exit
// code: 0 on quit, 1 on any startup failure.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "fatal: %v\n", err)
		return 1
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "%s %s\n", paths.BinaryName, resolveVersion())
		return 0
	}

	data := DataPaths{Root: opts.dataDir}
	cfg, err := loadConfig(data, opts, getenv)
	if err != nil {
		fmt.Fprintf(stderr, "fatal: load config: %v\n", err)
		return 1
	}

	if opts.dumpConfig {
		out, err := config.Annotate(cfg, paths.BinaryName+" effective configuration")
		if err != nil {
			fmt.Fprintf(stderr, "fatal: %v\n", err)
			return 1
		}
		stdout.Write(out)
		return 0
	}

	// Validate has already accepted the level.
	lvl, _ := logger.ParseLevel(cfg.Log.Level)
	level := new(slog.LevelVar)
	level.Set(lvl)
	log, logCloser := logger.NewLogger(data.Log(), level, cfg.Log.MaxSizeMB)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("tshell starting", "version", resolveVersion(), "data_dir", data.Root,
		"host", cfg.Connection.Host, "port", cfg.Connection.Port, "policy", cfg.Cancel.Policy)

	a, err := newApp(cfg, data, level, stdin, stdout, stderr, func(code int) {
		logCloser.Close()
		os.Exit(code)
	})
	if err != nil {
		logger.Fail(log, "startup failed", "error", err)
		fmt.Fprintf(stderr, "fatal: %v\n", err)
		return 1
	}
	defer a.close()

	if err := a.run(context.Background()); err != nil {
		logger.Fail(log, "shell failed", "error", err)
		fmt.Fprintf(stderr, "fatal: %v\n", err)
		return 1
	}
	slog.Info("tshell exiting", "statements", a.sup.Iterations(), "cancel", a.worker.Stats())
	return 0
}
