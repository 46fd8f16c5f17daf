// Package bridge relays process termination signals to an ordinary
// goroutine, runs bounded cleanup there, then re-raises the signal with its
// default disposition so the process dies the way the OS would have
// killed it.
//
// The relay goroutine that drains the os/signal channel is held to the
// rules of a real signal handler: it only touches atomics and calls
// [trigger.Trigger.Trigger]. Everything else happens on the trigger's
// monitor goroutine.
//
// Only one Bridge may be installed per process. See [Install].
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/olebedev/emitter"
	"github.com/prometheus/client_golang/prometheus"

	"tools.zach/dev/sigbridge/internal/trigger"
)

// Event bus topics published by the delivery path. Each event carries the
// signal as its first argument; see [SignalOf].
const (
	// TopicInterrupt fires once, before cleanup starts.
	TopicInterrupt = "interrupt"
	// TopicTerminating fires after cleanup, right before the re-raise.
	TopicTerminating = "terminating"
)

// maxSignal bounds the signal numbers the relay can look up without a lock.
const maxSignal = 65

var (
	// ErrAlreadyInstalled is returned by Install while another bridge holds
	// the process-wide slot.
	ErrAlreadyInstalled = errors.New("bridge: already installed")
	// ErrClosed is returned by operations on a closed bridge.
	ErrClosed = errors.New("bridge: closed")
	// ErrUnsupportedSignal means the signal has no number the relay can index.
	ErrUnsupportedSignal = errors.New("bridge: unsupported signal")
	// ErrIgnored is returned by Watch when the signal is ignored and the
	// bridge was told to leave ignored signals alone.
	ErrIgnored = errors.New("bridge: signal is ignored")
)

// installed is the process-wide slot claimed by Install.
var installed atomic.Pointer[Bridge]

// ShutdownFunc runs on the delivery path between the interrupt event and
// the re-raise. ctx expires after the configured timeout. It must not call
// [Bridge.Close] or [Bridge.Unwatch].
type ShutdownFunc func(ctx context.Context, sig os.Signal) error

// watch is one intercepted signal.
type watch struct {
	sig  os.Signal
	num  int
	prev Disposition
	trig *trigger.Trigger
	// owned is false when trig is the bridge's shared trigger.
	owned bool
	state atomic.Int32
	// received is resolved at watch time so the relay only increments.
	received prometheus.Counter
}

func (w *watch) State() State { return State(w.state.Load()) }

// Bridge intercepts termination signals. Build one with [Install].
type Bridge struct {
	log      *slog.Logger
	events   *emitter.Emitter
	shutdown ShutdownFunc
	timeout  time.Duration
	grace    time.Duration
	shared   bool
	respect  bool

	// raise and exit end the process. Tests replace them.
	raise func(os.Signal) error
	exit  func(code int)

	// mu guards watched, sharedTrig and closed. The relay never takes it.
	mu         sync.Mutex
	watched    map[int]*watch
	sharedTrig *trigger.Trigger
	closed     bool

	// slots mirrors watched for lock-free lookup by signal number.
	slots [maxSignal]atomic.Pointer[watch]

	ch        chan os.Signal
	relayDone chan struct{}

	terminating atomic.Bool
	lastSignal  atomic.Int64
}

// ///////////////////////////////////////////////
// Install
// ///////////////////////////////////////////////

// Install claims the process-wide bridge slot and starts the relay. It
// returns ErrAlreadyInstalled while another Bridge is open.
func Install(opts ...Option) (*Bridge, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	b := &Bridge{
		log:       s.log.With("component", "bridge"),
		events:    s.events,
		shutdown:  s.shutdown,
		timeout:   s.timeout,
		grace:     s.grace,
		shared:    s.shared,
		respect:   s.respectIgnored,
		raise:     raiseDefault,
		exit:      os.Exit,
		watched:   make(map[int]*watch),
		ch:        make(chan os.Signal, 8),
		relayDone: make(chan struct{}),
	}
	if !installed.CompareAndSwap(nil, b) {
		return nil, ErrAlreadyInstalled
	}

	go b.relay()
	b.log.Debug("bridge installed", "shared_trigger", b.shared, "timeout", b.timeout)
	return b, nil
}

// ///////////////////////////////////////////////
// Watch / Unwatch
// ///////////////////////////////////////////////

// Watch starts intercepting sig and returns the disposition it had before.
// Watching an already watched signal is a no-op. With respect-ignored set,
// a signal that is currently ignored is left alone and ErrIgnored returned.
func (b *Bridge) Watch(sig os.Signal) (Disposition, error) {
	num, ok := signalNumber(sig)
	if !ok {
		return Default, fmt.Errorf("%w: %v", ErrUnsupportedSignal, sig)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return Default, ErrClosed
	}
	if w, ok := b.watched[num]; ok {
		return w.prev, nil
	}

	prev := Default
	if signal.Ignored(sig) {
		prev = Ignored
		if b.respect {
			b.log.Info("leaving ignored signal alone", "signal", sig)
			return prev, fmt.Errorf("%w: %v", ErrIgnored, sig)
		}
	}

	trig, owned, err := b.triggerForLocked(sig)
	if err != nil {
		return prev, fmt.Errorf("watch %v: %w", sig, err)
	}

	w := &watch{
		sig:      sig,
		num:      num,
		prev:     prev,
		trig:     trig,
		owned:    owned,
		received: SignalsReceived.WithLabelValues(signalName(sig)),
	}
	w.state.Store(int32(Watched))

	b.watched[num] = w
	b.slots[num].Store(w)
	signal.Notify(b.ch, sig)
	WatchedSignals.Inc()

	b.log.Info("watching signal", "signal", sig, "previous", prev)
	return prev, nil
}

// triggerForLocked returns the trigger a new watch should post to.
func (b *Bridge) triggerForLocked(sig os.Signal) (*trigger.Trigger, bool, error) {
	if b.shared {
		if b.sharedTrig == nil {
			t, err := b.newTrigger("shared")
			if err != nil {
				return nil, false, err
			}
			b.sharedTrig = t
		}
		return b.sharedTrig, false, nil
	}
	t, err := b.newTrigger(signalName(sig))
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (b *Bridge) newTrigger(name string) (*trigger.Trigger, error) {
	return trigger.New(trigger.Counting(1),
		trigger.WithEnabled(true),
		trigger.WithName(name),
		trigger.WithHandler(b.handle),
		trigger.WithLogger(b.log),
	)
}

// Unwatch stops intercepting sig and restores its previous disposition.
// Unwatching a signal that is not watched is a no-op.
func (b *Bridge) Unwatch(sig os.Signal) error {
	num, ok := signalNumber(sig)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnsupportedSignal, sig)
	}

	b.mu.Lock()
	w, ok := b.watched[num]
	if !ok || b.closed {
		b.mu.Unlock()
		return nil
	}
	delete(b.watched, num)
	b.slots[num].Store(nil)
	restore(w)
	WatchedSignals.Dec()

	// The shared trigger lives only while some signal posts to it; the next
	// Watch builds a fresh one.
	var idle *trigger.Trigger
	if w.owned {
		idle = w.trig
	} else if len(b.watched) == 0 && b.sharedTrig != nil {
		idle = b.sharedTrig
		b.sharedTrig = nil
	}
	b.mu.Unlock()

	b.log.Info("stopped watching signal", "signal", sig, "restored", w.prev)
	if idle != nil {
		return idle.Close()
	}
	return nil
}

// restore puts back the disposition sig had before it was watched.
func restore(w *watch) {
	signal.Reset(w.sig)
	if w.prev == Ignored {
		signal.Ignore(w.sig)
	}
}

// Close restores every watched signal, stops the relay, disables the
// triggers and releases the process-wide slot. It must not be called from a
// ShutdownFunc.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	var trigs []*trigger.Trigger
	for num, w := range b.watched {
		b.slots[num].Store(nil)
		restore(w)
		WatchedSignals.Dec()
		if w.owned {
			trigs = append(trigs, w.trig)
		}
	}
	if b.sharedTrig != nil {
		trigs = append(trigs, b.sharedTrig)
	}
	b.watched = nil
	signal.Stop(b.ch)
	close(b.ch)
	b.mu.Unlock()

	<-b.relayDone

	// Triggers are closed without the lock: closing joins a monitor that
	// may itself be waiting on it.
	var errs *multierror.Error
	for _, t := range trigs {
		if err := t.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close trigger %s: %w", t.Name(), err))
		}
	}

	b.events.Off(TopicInterrupt)
	b.events.Off(TopicTerminating)
	installed.CompareAndSwap(b, nil)

	b.log.Debug("bridge closed")
	return errs.ErrorOrNil()
}

// ///////////////////////////////////////////////
// Relay (signal path)
// ///////////////////////////////////////////////

func (b *Bridge) relay() {
	defer close(b.relayDone)
	for sig := range b.ch {
		b.onSignal(sig)
	}
}

// onSignal is the handler body. It may only touch atomics and post.
func (b *Bridge) onSignal(sig os.Signal) {
	num, ok := signalNumber(sig)
	if !ok {
		return
	}
	b.lastSignal.Store(int64(num))

	w := b.slots[num].Load()
	if w == nil {
		return
	}
	w.received.Inc()

	if b.terminating.Load() {
		return
	}
	// A signal that is already pending coalesces into that notification.
	if !w.state.CompareAndSwap(int32(Watched), int32(SignalPending)) {
		return
	}
	w.trig.Trigger(int64(num))
}

// ///////////////////////////////////////////////
// Delivery (monitor goroutine)
// ///////////////////////////////////////////////

// handle receives trigger notifications. In shared mode the payload names
// the most recent signal, which is the one delivered.
func (b *Bridge) handle(n trigger.Notification) {
	v, ok := n.Payload.Value()
	if !ok || v <= 0 || v >= maxSignal {
		return
	}
	w := b.slots[v].Load()
	if w == nil {
		return
	}
	if !w.state.CompareAndSwap(int32(SignalPending), int32(Delivering)) {
		return
	}
	SignalsDelivered.WithLabelValues(signalName(w.sig)).Inc()
	b.terminate(w)
}

// terminate runs the termination sequence for w. Only the first caller
// proceeds; the bridge stays terminating afterwards.
func (b *Bridge) terminate(w *watch) {
	if !b.terminating.CompareAndSwap(false, true) {
		w.state.Store(int32(Watched))
		return
	}

	sig := w.sig
	b.log.Warn("received termination signal", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	b.publish(ctx, TopicInterrupt, sig)

	w.state.Store(int32(Terminating))
	// A second delivery now gets the OS default action.
	signal.Reset(sig)

	start := time.Now()
	if err := b.runShutdown(ctx, sig); err != nil {
		b.log.Error("shutdown cleanup failed", "signal", sig, "error", err)
	}
	CleanupSeconds.Observe(time.Since(start).Seconds())

	b.publish(ctx, TopicTerminating, sig)
	b.log.Info("done, re-raising signal", "signal", sig, "cleanup", time.Since(start).Round(time.Millisecond))

	if err := b.raise(sig); err != nil {
		b.log.Error("re-raise failed", "signal", sig, "error", err)
	}

	// Still alive: the default action did not terminate us (for example the
	// signal was ignored at startup). Exit with the shell convention.
	timer := time.NewTimer(b.grace)
	defer timer.Stop()
	<-timer.C
	code := 128 + w.num
	b.log.Warn("still running after re-raise, exiting", "signal", sig, "code", code)
	b.exit(code)
}

// runShutdown calls the ShutdownFunc and stops waiting once ctx expires.
func (b *Bridge) runShutdown(ctx context.Context, sig os.Signal) error {
	if b.shutdown == nil {
		return nil
	}
	errc := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errc <- fmt.Errorf("shutdown panic: %v", r)
			}
		}()
		errc <- b.shutdown(ctx, sig)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown abandoned: %w", ctx.Err())
	}
}

// publish emits topic and waits for subscribers until ctx ends, then
// cancels the emission.
func (b *Bridge) publish(ctx context.Context, topic string, args ...any) {
	done := b.events.Emit(topic, args...)
	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		default:
			close(done)
		}
	}
}

// ///////////////////////////////////////////////
// Introspection
// ///////////////////////////////////////////////

// Events returns the bus carrying TopicInterrupt and TopicTerminating.
func (b *Bridge) Events() *emitter.Emitter { return b.events }

// LastSignal returns the most recent signal the relay saw, watched or not.
func (b *Bridge) LastSignal() (os.Signal, bool) {
	n := b.lastSignal.Load()
	if n == 0 {
		return nil, false
	}
	return syscall.Signal(n), true
}

// State returns where sig is in the bridge state machine.
func (b *Bridge) State(sig os.Signal) State {
	num, ok := signalNumber(sig)
	if !ok {
		return Unwatched
	}
	w := b.slots[num].Load()
	if w == nil {
		return Unwatched
	}
	return w.State()
}

// Terminating reports whether a termination sequence has started.
func (b *Bridge) Terminating() bool { return b.terminating.Load() }

// Watched returns the signals currently intercepted.
func (b *Bridge) Watched() []os.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]os.Signal, 0, len(b.watched))
	for _, w := range b.watched {
		out = append(out, w.sig)
	}
	return out
}

// SignalOf extracts the signal carried by a bridge event.
func SignalOf(e emitter.Event) (os.Signal, bool) {
	if len(e.Args) == 0 {
		return nil, false
	}
	sig, ok := e.Args[0].(os.Signal)
	return sig, ok
}

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

func signalNumber(sig os.Signal) (int, bool) {
	s, ok := sig.(syscall.Signal)
	if !ok || s <= 0 || int(s) >= maxSignal {
		return 0, false
	}
	return int(s), true
}
