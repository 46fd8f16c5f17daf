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

func trimmed(buf *bytes.Buffer) string {
	return strings.TrimRight(buf.String(), "\r\n")
}

// ///////////////////////////////////////////////
// Handler Output Format
// ///////////////////////////////////////////////

func TestHandlerFormat(t *testing.T) {
	tests := []struct {
		name    string
		log     func(*slog.Logger)
		want    []string
		notWant []string
	}{
		{
			name: "message and attr",
			log:  func(l *slog.Logger) { l.Info("signal received", "signal", "terminated") },
			want: []string{"[INFO] signal received", "| signal=terminated"},
		},
		{
			name:    "no attrs",
			log:     func(l *slog.Logger) { l.Info("watching") },
			want:    []string{"[INFO] watching"},
			notWant: []string{"|"},
		},
		{
			name: "several attrs",
			log:  func(l *slog.Logger) { l.Warn("cleanup step failed", "step", "webhook", "attempt", 2) },
			want: []string{"[WARN]", "step=webhook, attempt=2"},
		},
		{
			name: "custom levels",
			log: func(l *slog.Logger) {
				Trace(l, "relay wake")
				Fail(l, "cannot install")
			},
			want: []string{"[TRACE] relay wake", "[FAIL] cannot install"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(slog.New(NewHandler(&buf, LevelTrace)))
			out := trimmed(&buf)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output %q missing %q", out, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output %q should not contain %q", out, w)
				}
			}
		})
	}
}

func TestHandlerUTCTimestamp(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, LevelInfo)).Info("x")

	stamp, _, _ := strings.Cut(trimmed(&buf), " [")
	if !strings.HasSuffix(stamp, "Z") || len(stamp) != len("2006-01-02T15:04:05.000Z") {
		t.Errorf("timestamp = %q, want UTC millisecond format", stamp)
	}
}

func TestHandlerGroups(t *testing.T) {
	tests := []struct {
		name   string
		groups []string
		want   string
	}{
		{"single", []string{"bridge"}, "bridge.signal=hangup"},
		{"nested", []string{"bridge", "watch"}, "bridge.watch.signal=hangup"},
		{"empty ignored", []string{""}, "| signal=hangup"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			var h slog.Handler = NewHandler(&buf, LevelInfo)
			for _, g := range tt.groups {
				h = h.WithGroup(g)
			}
			slog.New(h).Info("watch", "signal", "hangup")
			if out := trimmed(&buf); !strings.Contains(out, tt.want) {
				t.Errorf("output %q missing %q", out, tt.want)
			}
		})
	}
}

func TestHandlerWithAttrsSharesMutex(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, LevelInfo)
	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "bridge")}).(*Handler)

	if h.mu != h2.mu {
		t.Fatal("WithAttrs should share the same mutex pointer")
	}

	l1, l2 := slog.New(h), slog.New(h2)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); l1.Info("one") }()
		go func() { defer wg.Done(); l2.Info("two") }()
	}
	wg.Wait()

	lines := strings.Split(trimmed(&buf), "\n")
	if len(lines) != 100 {
		t.Errorf("got %d lines, want 100", len(lines))
	}
	if !strings.Contains(buf.String(), "component=bridge") {
		t.Error("pre-applied attr missing")
	}
}

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

func TestLevelVarChangesFiltering(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(LevelWarn)
	logger := slog.New(NewHandler(&buf, level))

	logger.Info("hidden")
	level.Set(LevelDebug)
	logger.Debug("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info logged at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("debug not logged after lowering the level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"TRACE", LevelTrace},
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"fail", LevelFail},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// NewLogger
// ///////////////////////////////////////////////

func TestNewLoggerFansOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sigbridge.log")
	var console bytes.Buffer

	logger, closer, err := NewLogger(Options{Path: path, MaxSizeMB: 1, Console: &console})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("both outputs", "signal", "interrupt")
	logger.Debug("below default level")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for name, out := range map[string]string{"file": string(data), "console": console.String()} {
		if !strings.Contains(out, "both outputs | signal=interrupt") {
			t.Errorf("%s output = %q", name, out)
		}
		if strings.Contains(out, "below default level") {
			t.Errorf("%s logged a debug record at info level", name)
		}
	}
}

func TestNewLoggerWithoutOutputs(t *testing.T) {
	logger, closer, err := NewLogger(Options{})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("discarded")
	if err := closer.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNewLoggerRejectsBadSize(t *testing.T) {
	if _, _, err := NewLogger(Options{Path: filepath.Join(t.TempDir(), "x.log")}); err == nil {
		t.Fatal("expected error for zero max size")
	}
}

// ///////////////////////////////////////////////
// ReadTail
// ///////////////////////////////////////////////

func TestReadTail(t *testing.T) {
	tests := []struct {
		name    string
		content string
		n       int
		want    string
	}{
		{"last three", "l1\nl2\nl3\nl4\nl5\n", 3, "l3\nl4\nl5"},
		{"fewer lines", "l1\nl2\n", 10, "l1\nl2"},
		{"exact", "l1\nl2\n", 2, "l1\nl2"},
		{"empty", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sigbridge.log")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := ReadTail(path, tt.n)
			if err != nil {
				t.Fatalf("ReadTail: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadTail = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadTailMissingFile(t *testing.T) {
	if _, err := ReadTail(filepath.Join(t.TempDir(), "missing.log"), 10); err == nil {
		t.Fatal("expected error for missing file")
	}
}
