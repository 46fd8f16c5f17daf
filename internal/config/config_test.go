// Tests for the config package covering [Load] behavior (defaults, overrides,
// missing files, malformed input), validation ([Config.Validate]), signal
// name resolution ([ParseSignal]), serialization round-trips
// ([Config.Save]), the file [Watcher], and [ConfigDocs] completeness.

package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

// ///////////////////////////////////////////////
// Load
// ///////////////////////////////////////////////

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		noFile  bool
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:   "defaults from minimal config",
			config: "version = 1\n",
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				def := DefaultConfig()
				if !reflect.DeepEqual(cfg.Signals.Watch, def.Signals.Watch) {
					t.Errorf("Watch = %v, want %v", cfg.Signals.Watch, def.Signals.Watch)
				}
				if cfg.Shutdown.CleanupDelaySeconds != 3 {
					t.Errorf("CleanupDelaySeconds = %d, want 3", cfg.Shutdown.CleanupDelaySeconds)
				}
			},
		},
		{
			name: "user overrides applied",
			config: `
version = 1

[signals]
watch = ["int"]
shared_trigger = true

[shutdown]
cleanup_delay_seconds = 0
timeout_seconds = 4
remove = ["*.sock"]
webhook_url = "https://example.com/hook"

[log]
level = "debug"
max_size_mb = 5

[metrics]
listen = "127.0.0.1:9464"
`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if !cfg.Signals.SharedTrigger {
					t.Error("SharedTrigger = false, want true")
				}
				if cfg.Timeout() != 4*time.Second || cfg.CleanupDelay() != 0 {
					t.Errorf("Timeout=%v CleanupDelay=%v", cfg.Timeout(), cfg.CleanupDelay())
				}
				if len(cfg.Shutdown.Remove) != 1 || cfg.Shutdown.Remove[0] != "*.sock" {
					t.Errorf("Remove = %v", cfg.Shutdown.Remove)
				}
				if cfg.Log.Level != "debug" || cfg.Metrics.Listen != "127.0.0.1:9464" {
					t.Errorf("Log.Level=%q Metrics.Listen=%q", cfg.Log.Level, cfg.Metrics.Listen)
				}
			},
		},
		{
			name:   "missing file returns defaults",
			noFile: true,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if !reflect.DeepEqual(cfg, DefaultConfig()) {
					t.Errorf("cfg = %+v, want defaults", cfg)
				}
			},
		},
		{
			name:    "malformed toml",
			config:  "[signals\nwatch = ",
			wantErr: true,
		},
		{
			name:    "unknown signal",
			config:  "[signals]\nwatch = [\"SIGNOPE\"]\n",
			wantErr: true,
		},
		{
			name:    "newer schema version",
			config:  "version = 99\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if !tt.noFile {
				os.WriteFile(filepath.Join(dir, "config.toml"), []byte(tt.config), 0o644)
			}

			cfg, err := Load(dir)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Validate
// ///////////////////////////////////////////////

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults valid", mutate: func(*Config) {}},
		{name: "empty watch", mutate: func(c *Config) { c.Signals.Watch = nil }, wantErr: "at least one"},
		{name: "negative delay", mutate: func(c *Config) { c.Shutdown.CleanupDelaySeconds = -1 }, wantErr: "cleanup_delay_seconds"},
		{name: "zero timeout", mutate: func(c *Config) { c.Shutdown.TimeoutSeconds = 0 }, wantErr: "timeout_seconds"},
		{
			name: "delay not below timeout",
			mutate: func(c *Config) {
				c.Shutdown.CleanupDelaySeconds = 10
				c.Shutdown.TimeoutSeconds = 10
			},
			wantErr: "less than",
		},
		{name: "bad glob", mutate: func(c *Config) { c.Shutdown.Remove = []string{"[oops"} }, wantErr: "pattern"},
		{name: "escaping glob", mutate: func(c *Config) { c.Shutdown.Remove = []string{"../etc/*"} }, wantErr: "relative"},
		{name: "bad webhook", mutate: func(c *Config) { c.Shutdown.WebhookURL = "ftp://x" }, wantErr: "webhook_url"},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
		{name: "zero log size", mutate: func(c *Config) { c.Log.MaxSizeMB = 0 }, wantErr: "max_size_mb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Signals
// ///////////////////////////////////////////////

type parseCase struct {
	in      string
	wantErr bool
}

func TestParseSignal(t *testing.T) {
	tests := []parseCase{
		{in: "SIGINT"},
		{in: "sigint"},
		{in: "int"},
		{in: " INT "},
		{in: "", wantErr: true},
		{in: "SIGNOPE", wantErr: true},
	}
	if runtime.GOOS != "windows" {
		tests = append(tests, parseCase{in: "term"}, parseCase{in: "SIGKILL", wantErr: true})
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			sig, err := ParseSignal(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownSignal) {
					t.Errorf("ParseSignal(%q) error = %v, want ErrUnknownSignal", tt.in, err)
				}
				return
			}
			if err != nil || sig == nil {
				t.Errorf("ParseSignal(%q) = %v, %v", tt.in, sig, err)
			}
		})
	}
}

func TestWatchedSignalsDedup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Signals.Watch = []string{"SIGINT", "int", "sigint"}
	sigs, err := cfg.WatchedSignals()
	if err != nil {
		t.Fatalf("WatchedSignals: %v", err)
	}
	if len(sigs) != 1 || sigs[0] != os.Interrupt {
		t.Errorf("WatchedSignals = %v, want [interrupt]", sigs)
	}
}

// ///////////////////////////////////////////////
// Save / WriteDefault
// ///////////////////////////////////////////////

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	want := DefaultConfig()
	want.Shutdown.Remove = []string{"tmp/**"}
	want.Metrics.Listen = ":9464"

	if err := want.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip:\n got %+v\nwant %+v", got, want)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	wrote, err := WriteDefault(path)
	if err != nil || !wrote {
		t.Fatalf("WriteDefault = %v, %v, want true, nil", wrote, err)
	}
	if _, err := LoadFile(path); err != nil {
		t.Errorf("embedded default does not load: %v", err)
	}

	os.WriteFile(path, []byte("version = 1\n"), 0o644)
	wrote, err = WriteDefault(path)
	if err != nil || wrote {
		t.Errorf("second WriteDefault = %v, %v, want false, nil", wrote, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "version = 1\n" {
		t.Error("WriteDefault overwrote an existing config")
	}
}

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

func TestWatcherSeesReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	os.WriteFile(path, []byte("version = 1\n"), 0o644)

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	if w.Polling() {
		t.Skip("fsnotify unavailable")
	}

	cfg := DefaultConfig()
	cfg.Log.Level = "debug"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	select {
	case <-w.Events():
	case <-time.After(3 * time.Second):
		t.Fatal("no event after config replace")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	if w.Polling() {
		t.Skip("fsnotify unavailable")
	}

	os.WriteFile(filepath.Join(dir, "sigbridge.log"), []byte("noise"), 0o644)
	select {
	case <-w.Events():
		t.Error("event for unrelated file")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherPollingFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	os.WriteFile(path, []byte("version = 1\n"), 0o644)

	w := &Watcher{
		path:         path,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: 10 * time.Millisecond,
		log:          slog.Default(),
	}
	w.startPolling()
	defer w.Close()

	time.Sleep(30 * time.Millisecond)
	os.WriteFile(path, []byte("version = 1\n# changed\n"), 0o644)

	select {
	case <-w.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("polling watcher missed the change")
	}
	if !w.Polling() {
		t.Error("Polling() = false")
	}
}

// ///////////////////////////////////////////////
// ConfigDocs completeness
// ///////////////////////////////////////////////

func TestConfigDocsComplete(t *testing.T) {
	fields := collectTOMLFields(reflect.TypeOf(Config{}), "")
	for _, field := range fields {
		if _, ok := ConfigDocs[field]; !ok {
			t.Errorf("ConfigDocs missing entry for field %q", field)
		}
	}
}

func TestDefaultConfigEncodes(t *testing.T) {
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(DefaultConfig()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for _, section := range []string{"[signals]", "[shutdown]", "[log]"} {
		if !strings.Contains(buf.String(), section) {
			t.Errorf("encoded config missing %s", section)
		}
	}
}

// collectTOMLFields recursively walks a struct type and returns the
// dot-separated TOML key path for every tagged field.
func collectTOMLFields(typ reflect.Type, prefix string) []string {
	var fields []string
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("toml")
		if tag == "" || tag == "-" {
			continue
		}
		if idx := strings.Index(tag, ","); idx != -1 {
			tag = tag[:idx]
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct {
			fields = append(fields, collectTOMLFields(f.Type, path)...)
		} else {
			fields = append(fields, path)
		}
	}
	return fields
}
