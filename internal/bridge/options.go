package bridge

import (
	"log/slog"
	"time"

	"github.com/olebedev/emitter"
)

const (
	// DefaultTimeout bounds the shutdown callback.
	DefaultTimeout = 10 * time.Second
	// DefaultGrace is how long to wait for the re-raised signal before
	// falling back to an explicit exit.
	DefaultGrace = 2 * time.Second
)

// Option configures a Bridge.
type Option func(*settings)

type settings struct {
	log            *slog.Logger
	events         *emitter.Emitter
	shutdown       ShutdownFunc
	timeout        time.Duration
	grace          time.Duration
	shared         bool
	respectIgnored bool
}

func defaultSettings() settings {
	return settings{
		log:     slog.Default(),
		events:  emitter.New(1),
		timeout: DefaultTimeout,
		grace:   DefaultGrace,
	}
}

// WithLogger sets the logger used off the signal path.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEvents publishes on an existing bus instead of a private one.
func WithEvents(e *emitter.Emitter) Option {
	return func(s *settings) {
		if e != nil {
			s.events = e
		}
	}
}

// WithShutdown sets the cleanup run before the signal is re-raised.
func WithShutdown(fn ShutdownFunc) Option {
	return func(s *settings) { s.shutdown = fn }
}

// WithTimeout bounds the shutdown callback and event delivery. Non-positive
// values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithGrace sets the wait between the re-raise and the fallback exit.
func WithGrace(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithSharedTrigger routes every watched signal through one trigger. The
// notification then carries whichever signal arrived last.
func WithSharedTrigger(on bool) Option {
	return func(s *settings) { s.shared = on }
}

// WithRespectIgnored makes Watch refuse signals that are currently ignored,
// such as SIGHUP under nohup.
func WithRespectIgnored(on bool) Option {
	return func(s *settings) { s.respectIgnored = on }
}
