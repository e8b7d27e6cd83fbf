// Tests for the line format, level handling including live level changes,
// attribute grouping, and the rotating file constructor.
package logger

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func newTestLogger(level slog.Leveler) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(NewHandler(&buf, level)), &buf
}

func lastLine(buf *bytes.Buffer) string {
	return strings.TrimRight(buf.String(), "\r\n")
}

// ///////////////////////////////////////////////
// Handler Output Format
// ///////////////////////////////////////////////

func TestHandlerFormat(t *testing.T) {
	log, buf := newTestLogger(LevelInfo)
	log.Info("query interrupted", "id", 7)

	line := lastLine(buf)
	ts, rest, ok := strings.Cut(line, " [")
	if !ok {
		t.Fatalf("no level marker in %q", line)
	}
	if !strings.HasSuffix(ts, "Z") {
		t.Errorf("timestamp %q is not UTC", ts)
	}
	if rest != "INFO] query interrupted | id=7" {
		t.Errorf("line tail = %q", rest)
	}
}

func TestHandlerValueQuoting(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"bare", "stop", "v=stop"},
		{"spaces", "select * from t", `v="select * from t"`},
		{"empty", "", `v=""`},
		{"newline", "a\nb", `v="a\nb"`},
		{"number", 42, "v=42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newTestLogger(LevelInfo)
			log.Info("m", "v", tt.value)
			if got := lastLine(buf); !strings.HasSuffix(got, "| "+tt.want) {
				t.Errorf("line = %q, want suffix %q", got, tt.want)
			}
		})
	}
}

func TestHandlerNoAttrs(t *testing.T) {
	log, buf := newTestLogger(LevelInfo)
	log.Info("no attrs")
	if strings.Contains(buf.String(), "|") {
		t.Errorf("unexpected separator in %q", buf.String())
	}
}

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

func TestHandlerLevelFiltering(t *testing.T) {
	log, buf := newTestLogger(LevelWarn)
	log.Info("filtered")
	log.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "filtered") {
		t.Error("info record passed a warn handler")
	}
	if !strings.Contains(out, "kept") {
		t.Error("warn record dropped by a warn handler")
	}
}

func TestHandlerLevelVar(t *testing.T) {
	var lv slog.LevelVar
	lv.Set(LevelWarn)
	log, buf := newTestLogger(&lv)

	log.Debug("before")
	lv.Set(LevelDebug)
	log.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Error("debug record emitted at warn level")
	}
	if !strings.Contains(out, "after") {
		t.Error("debug record dropped after lowering the level")
	}
}

func TestCustomLevels(t *testing.T) {
	log, buf := newTestLogger(LevelTrace)
	Trace(log, "trace msg")
	Fail(log, "fail msg")

	out := buf.String()
	for _, want := range []string{"[TRACE] trace msg", "[FAIL] fail msg"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLevelNames(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{LevelTrace, "TRACE"},
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LevelFail, "FAIL"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := levelName(tt.level); got != tt.want {
				t.Errorf("levelName(%d) = %q, want %q", tt.level, got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"TRACE", LevelTrace, false},
		{" debug ", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"fail", LevelFail, false},
		{"verbose", LevelInfo, true},
		{"", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// WithAttrs / WithGroup
// ///////////////////////////////////////////////

func TestHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo).WithAttrs([]slog.Attr{slog.String("component", "worker")})
	slog.New(h).Info("stopped", "id", 3)

	if got := lastLine(&buf); !strings.HasSuffix(got, "| component=worker, id=3") {
		t.Errorf("line = %q", got)
	}
}

func TestHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo).WithAttrs([]slog.Attr{slog.Int("pid", 1)}).WithGroup("cancel").WithGroup("stats")
	slog.New(h).Info("snapshot", "idle", 2)

	if got := lastLine(&buf); !strings.HasSuffix(got, "| pid=1, cancel.stats.idle=2") {
		t.Errorf("line = %q", got)
	}
}

func TestHandlerWithGroupEmpty(t *testing.T) {
	h := NewHandler(&bytes.Buffer{}, LevelInfo)
	if h.WithGroup("") != slog.Handler(h) {
		t.Error("WithGroup(\"\") returned a new handler")
	}
}

func TestHandlerSharedMutex(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)
	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).(*Handler)
	if h.mu != h2.mu {
		t.Fatal("derived handler does not share the mutex")
	}

	l1, l2 := slog.New(h), slog.New(h2)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); l1.Info("one") }()
		go func() { defer wg.Done(); l2.Info("two") }()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\n")
	if len(lines) != 100 {
		t.Errorf("got %d lines, want 100", len(lines))
	}
}

// ///////////////////////////////////////////////
// NewLogger Constructor
// ///////////////////////////////////////////////

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tshell.log")

	log, closer := NewLogger(path, LevelInfo, 10)
	log.Info("constructor test")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "constructor test") {
		t.Errorf("log file = %q", data)
	}
}
