package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"tools.zach/dev/tshell/internal/client"
	"tools.zach/dev/tshell/internal/registry"
)

// Recorder stores executed statements. [*history.History] implements it.
type Recorder interface {
	Record(stmt string) error
}

// ConsoleOptions configures a [Console].
type ConsoleOptions struct {
	// Prompt is printed before each statement. Default "tshell> ".
	Prompt string
	// Continuation is printed before each continuation line. Default "   -> ".
	Continuation string
	// History receives every executed statement. May be nil.
	History Recorder
}

// Console is the interactive [Executor]: each Run reads one statement from
// its input, runs it, and prints the result. A statement ends at a line
// ending in ';'. Quit commands need no terminator.
type Console struct {
	in   *bufio.Reader
	out  io.Writer
	reg  *registry.Registry[*Operation]
	opts ConsoleOptions
}

// NewConsole creates a Console reading from in and writing to out. reg must
// be the registry the cancellation worker watches.
func NewConsole(in io.Reader, out io.Writer, reg *registry.Registry[*Operation], opts ConsoleOptions) *Console {
	if opts.Prompt == "" {
		opts.Prompt = "tshell> "
	}
	if opts.Continuation == "" {
		opts.Continuation = "   -> "
	}
	return &Console{in: bufio.NewReader(in), out: out, reg: reg, opts: opts}
}

// Run reads and executes one statement. It returns [ErrQuit] on a quit
// command or end of input, nil for blank input and interrupted queries, and
// the query error after printing it.
func (c *Console) Run(ctx context.Context, conn client.Conn) error {
	stmt, err := c.readStatement()
	if err != nil {
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(c.out)
			return ErrQuit
		}
		return fmt.Errorf("read input: %w", err)
	}
	if stmt == "" {
		return nil
	}
	if isQuit(stmt) {
		return ErrQuit
	}

	if c.opts.History != nil {
		if err := c.opts.History.Record(stmt); err != nil {
			slog.Warn("failed to record history", "error", err)
		}
	}
	return c.execute(ctx, conn, stmt)
}

// execute runs stmt as the published operation. The operation is cleared
// from the slot before its owner reference is dropped, so a cancel that
// arrives afterwards finds nothing to stop.
func (c *Console) execute(ctx context.Context, conn client.Conn, stmt string) error {
	op := newOperation(ctx, stmt)
	id := c.reg.Add(op)
	if stale := c.reg.Publish(id); stale != registry.None {
		slog.Warn("replaced stale active operation", "stale", int64(stale), "id", int64(id))
	}
	defer func() {
		c.reg.Clear()
		c.reg.Remove(id)
	}()

	slog.Debug("executing statement", "id", int64(id))
	res, err := conn.Query(op.Context(), stmt)
	if err != nil {
		if op.Stopped() {
			fmt.Fprintln(c.out, "Query interrupted by user.")
			return nil
		}
		fmt.Fprintf(c.out, "DB error: %v\n", err)
		return err
	}
	return res.Render(c.out)
}

// readStatement collects lines until one ends in ';'. A blank first line
// yields "". End of input with a partial statement returns what was read.
func (c *Console) readStatement() (string, error) {
	var sb strings.Builder
	prompt := c.opts.Prompt
	for {
		fmt.Fprint(c.out, prompt)
		raw, err := c.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line := strings.TrimSpace(raw)
		eof := err != nil

		if sb.Len() == 0 {
			if line == "" {
				if eof {
					return "", io.EOF
				}
				return "", nil
			}
			if isQuit(line) {
				return line, nil
			}
		}

		if line != "" {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(line)
		}
		if strings.HasSuffix(line, ";") || eof {
			return sb.String(), nil
		}
		prompt = c.opts.Continuation
	}
}

// isQuit reports whether s is one of the quit commands.
func isQuit(s string) bool {
	s = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), ";"))
	switch strings.TrimSpace(s) {
	case "quit", "exit", "q":
		return true
	}
	return false
}
