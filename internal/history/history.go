// Package history keeps the shell's statement history file.
//
// Each executed statement is stored on one line, whitespace folded. Writes
// hold an exclusive advisory lock on the file, so several shells sharing a
// data directory interleave whole entries instead of corrupting each other.
package history

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// History appends statements to a file, skipping ignored ones and keeping at
// most a fixed number of entries.
type History struct {
	// path is the history file location.
	path string
	// maxEntries bounds the file; older entries are dropped first.
	maxEntries int
	// ignore holds lowercased glob patterns; matching statements are not stored.
	ignore []string
	// mu serializes writers within this process; the file lock covers others.
	mu sync.Mutex
}

// New creates a History for path. Patterns are doublestar globs matched
// case-insensitively against the folded statement, e.g. "*password*".
func New(path string, maxEntries int, ignore []string) (*History, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("history: max entries must be > 0, got %d", maxEntries)
	}
	patterns := make([]string, 0, len(ignore))
	for _, p := range ignore {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("history: invalid ignore pattern %q", p)
		}
		patterns = append(patterns, segment(strings.ToLower(p)))
	}
	return &History{path: path, maxEntries: maxEntries, ignore: patterns}, nil
}

// Ignored reports whether stmt matches an ignore pattern.
func (h *History) Ignored(stmt string) bool {
	s := segment(strings.ToLower(fold(stmt)))
	for _, p := range h.ignore {
		if ok, _ := doublestar.Match(p, s); ok {
			return true
		}
	}
	return false
}

// Record appends stmt unless it is empty or ignored, then trims the file to
// the newest maxEntries lines.
func (h *History) Record(stmt string) error {
	line := fold(stmt)
	if line == "" || h.Ignored(line) {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return err
	}
	defer unlockFile(f)

	entries, err := readLines(f)
	if err != nil {
		return err
	}
	entries = append(entries, line)
	if len(entries) > h.maxEntries {
		entries = entries[len(entries)-h.maxEntries:]
	}

	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e)
		buf.WriteByte('\n')
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate history: %w", err)
	}
	if _, err := f.WriteAt(buf.Bytes(), 0); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

// Entries returns the stored statements, oldest first. A missing file is
// an empty history.
func (h *History) Entries() ([]string, error) {
	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()
	return readLines(f)
}

// readLines reads non-empty lines from the start of r. Lines have no length
// limit, since Record stores statements of any size.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading history: %w", err)
		}
	}
}

// pathSep stands in for '/' during matching. doublestar treats '/' as a path
// separator that '*' cannot cross; a statement is one segment.
const pathSep = "\x1f"

// segment replaces '/' so a pattern or statement matches as a single segment.
func segment(s string) string {
	return strings.ReplaceAll(s, "/", pathSep)
}

// fold collapses all runs of whitespace, newlines included, to one space.
func fold(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
