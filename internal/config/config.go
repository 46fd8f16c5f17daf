// Package config provides configuration loading and defaults for the
// sigbridge daemon.
//
// Configuration is loaded from a TOML file in the data directory. It
// selects which termination signals are bridged, what cleanup runs before
// the signal is re-raised, and how the daemon logs and exports metrics.
package config

//go:generate go run ../../cmd/genconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	sigbridge "tools.zach/dev/sigbridge"
	"tools.zach/dev/sigbridge/internal/atomicfile"
	"tools.zach/dev/sigbridge/internal/paths"
)

// CurrentVersion is the config schema version written by this build.
const CurrentVersion = 1

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version.
	Version int `toml:"version"`
	// Signals selects the intercepted signals and how they are routed.
	Signals SignalsConfig `toml:"signals"`
	// Shutdown holds the cleanup run before a signal is re-raised.
	Shutdown ShutdownConfig `toml:"shutdown"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
	// Metrics holds the Prometheus endpoint settings.
	Metrics MetricsConfig `toml:"metrics"`
}

// SignalsConfig selects the intercepted signals.
type SignalsConfig struct {
	// Watch lists signal names such as "SIGTERM" or "term".
	Watch []string `toml:"watch"`
	// SharedTrigger routes every signal through a single trigger.
	SharedTrigger bool `toml:"shared_trigger"`
	// RespectIgnored leaves signals that were ignored at startup alone.
	RespectIgnored bool `toml:"respect_ignored"`
}

// ShutdownConfig holds the cleanup run before a signal is re-raised.
type ShutdownConfig struct {
	// CleanupDelaySeconds is a pause before re-raising, letting in-flight
	// work settle.
	CleanupDelaySeconds int `toml:"cleanup_delay_seconds"`
	// TimeoutSeconds bounds the whole cleanup.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// Remove lists doublestar globs, relative to the data directory, that are
	// deleted during cleanup.
	Remove []string `toml:"remove"`
	// WebhookURL receives a JSON POST describing the signal. Empty disables it.
	WebhookURL string `toml:"webhook_url,omitempty"`
	// RecordLastSignal persists the signal so the next start can report it.
	RecordLastSignal bool `toml:"record_last_signal"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	// Listen is the address for /metrics, e.g. "127.0.0.1:9464". Empty
	// disables the endpoint.
	Listen string `toml:"listen,omitempty"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Signals: SignalsConfig{
			Watch: DefaultSignalNames(),
		},
		Shutdown: ShutdownConfig{
			CleanupDelaySeconds: 3,
			TimeoutSeconds:      10,
			Remove:              []string{},
			RecordLastSignal:    true,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ExampleConfig returns a Config suitable for generating config.default.toml.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses dataDir/config.toml. If the file doesn't exist,
// returns DefaultConfig.
func Load(dataDir string) (*Config, error) {
	return LoadFile(paths.DataDir{Root: dataDir}.Config())
}

// LoadFile reads and parses the config at path, filling unset fields from
// DefaultConfig. An older file is upgraded in place, keeping a ".bak" copy
// of the original.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	version, parsed := PeekVersion(data)
	if version > CurrentVersion {
		return nil, fmt.Errorf("config version %d is newer than supported version %d", version, CurrentVersion)
	}
	migrated := parsed && Migrations.NeedsMigration(version)
	if migrated {
		if err := os.WriteFile(path+".bak", data, 0o644); err != nil {
			slog.Warn("failed to write config backup", "error", err)
		}
		if data, err = Migrations.Run(slog.Default(), data, version); err != nil {
			return nil, fmt.Errorf("migrate config: %w", err)
		}
	}

	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		slog.Warn("unknown config keys ignored", "path", path, "keys", fmt.Sprint(undecoded))
	}
	cfg.Version = CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if migrated {
		if err := atomicfile.Write(path, data, 0o644); err != nil {
			slog.Warn("failed to save migrated config", "error", err)
		}
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	if err := atomicfile.WriteTOML(path, c, 0o644); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	return nil
}

// WriteDefault writes the embedded, commented config.default.toml to path
// unless a file already exists there. It reports whether it wrote.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat config: %w", err)
	}
	if err := atomicfile.Write(path, sigbridge.DefaultConfigTOML, 0o644); err != nil {
		return false, fmt.Errorf("write default config: %w", err)
	}
	return true, nil
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if len(c.Signals.Watch) == 0 {
		return fmt.Errorf("signals.watch must list at least one signal")
	}
	if _, err := c.WatchedSignals(); err != nil {
		return err
	}

	if c.Shutdown.CleanupDelaySeconds < 0 {
		return fmt.Errorf("cleanup_delay_seconds must be >= 0, got %d", c.Shutdown.CleanupDelaySeconds)
	}
	if c.Shutdown.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be > 0, got %d", c.Shutdown.TimeoutSeconds)
	}
	if c.Shutdown.CleanupDelaySeconds >= c.Shutdown.TimeoutSeconds {
		return fmt.Errorf("cleanup_delay_seconds (%d) must be less than timeout_seconds (%d)",
			c.Shutdown.CleanupDelaySeconds, c.Shutdown.TimeoutSeconds)
	}
	for _, pattern := range c.Shutdown.Remove {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid shutdown.remove pattern %q", pattern)
		}
		if filepath.IsAbs(pattern) || strings.HasPrefix(pattern, "..") {
			return fmt.Errorf("shutdown.remove pattern %q must be relative to the data directory", pattern)
		}
	}
	if u := c.Shutdown.WebhookURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("invalid webhook_url %q: must be http or https", u)
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}
	return nil
}

// ///////////////////////////////////////////////
// Accessors
// ///////////////////////////////////////////////

// WatchedSignals resolves Signals.Watch, dropping duplicates.
func (c *Config) WatchedSignals() ([]os.Signal, error) {
	seen := make(map[os.Signal]bool, len(c.Signals.Watch))
	out := make([]os.Signal, 0, len(c.Signals.Watch))
	for _, name := range c.Signals.Watch {
		sig, err := ParseSignal(name)
		if err != nil {
			return nil, err
		}
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, sig)
	}
	return out, nil
}

// CleanupDelay returns Shutdown.CleanupDelaySeconds as a duration.
func (c *Config) CleanupDelay() time.Duration {
	return time.Duration(c.Shutdown.CleanupDelaySeconds) * time.Second
}

// Timeout returns Shutdown.TimeoutSeconds as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Shutdown.TimeoutSeconds) * time.Second
}
