// Package trigger provides a semaphore-backed notification primitive whose
// trigger side is safe to call from the signal delivery path.
//
// A [Trigger] owns a counting semaphore and a monitor goroutine while it is
// enabled. [Trigger.Trigger] touches only atomics and issues at most one
// semaphore post; all other work (handler calls, logging) happens on the
// monitor goroutine.
//
// The payload passed to Trigger is kept in a single slot: if several
// triggers race ahead of delivery, the notification carries the last one.
package trigger

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAllocate is returned when the semaphore cannot be created.
var ErrAllocate = errors.New("trigger: cannot allocate semaphore")

// handoffDepth is the number of native-mode notifications that may wait for
// the monitor before Wait callers block on the handoff.
const handoffDepth = 64

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Payload is the word-sized value carried by a notification. The zero value
// is an unset payload.
type Payload struct {
	value int64
	set   bool
}

// PayloadOf returns a set payload holding v.
func PayloadOf(v int64) Payload { return Payload{value: v, set: true} }

// Value returns the payload value and whether one was set.
func (p Payload) Value() (int64, bool) { return p.value, p.set }

func (p Payload) String() string {
	if !p.set {
		return "<unset>"
	}
	return fmt.Sprintf("%d", p.value)
}

// Notification is delivered to the [Handler] on the monitor goroutine.
type Notification struct {
	// Payload is the most recent payload known at delivery time.
	Payload Payload
	// Seq numbers notifications from 1 over the lifetime of the Trigger.
	Seq uint64
}

// Handler receives notifications. It runs on the monitor goroutine and must
// not call SetEnabled or Close on its own Trigger.
type Handler func(n Notification)

// Stats is a snapshot of a Trigger's counters.
type Stats struct {
	// Triggers counts Trigger calls made while enabled.
	Triggers uint64
	// Posts counts semaphore posts issued by Trigger.
	Posts uint64
	// Notifications counts notifications delivered.
	Notifications uint64
}

// generation holds the resources of one enabled period. They are created
// together by enable and released together by disable.
type generation struct {
	// sem is the semaphore the signal path posts to.
	sem semaphore
	// stop is closed by disable.
	stop chan struct{}
	// done is closed by the monitor goroutine when it exits.
	done chan struct{}
	// handoff carries native-mode notifications from waiters to the monitor.
	handoff chan Notification
}

// Trigger is a signal-safe counting trigger with a dedicated monitor
// goroutine. Build one with [New].
type Trigger struct {
	name    string
	mode    Mode
	handler Handler
	log     *slog.Logger

	// enabled is the single point of truth for the signal path.
	enabled atomic.Bool
	// gen is nil whenever no semaphore is live.
	gen atomic.Pointer[generation]
	// failed records that the last enable could not allocate.
	failed atomic.Bool

	// remaining is the counting-mode countdown.
	remaining atomic.Int64

	pendingValue atomic.Int64
	pendingSet   atomic.Bool

	triggers      atomic.Uint64
	posts         atomic.Uint64
	notifications atomic.Uint64

	// lifecycle serializes SetEnabled and Close. The signal path never
	// takes it.
	lifecycle sync.Mutex
	// waitSlot admits one native-mode waiter at a time.
	waitSlot chan struct{}
}

// ///////////////////////////////////////////////
// Options
// ///////////////////////////////////////////////

// Option configures a Trigger.
type Option func(*settings)

type settings struct {
	enabled bool
	name    string
	handler Handler
	log     *slog.Logger
}

// WithEnabled arms the Trigger during New.
func WithEnabled(on bool) Option {
	return func(s *settings) { s.enabled = on }
}

// WithName labels the Trigger in log output.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithHandler sets the function that receives notifications.
func WithHandler(h Handler) Option {
	return func(s *settings) { s.handler = h }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.log = l }
}

// ///////////////////////////////////////////////
// Constructor and Lifecycle
// ///////////////////////////////////////////////

// New builds a Trigger in the given mode. A nil mode means [Native]. When
// [WithEnabled] is set, New performs the enable sequence and returns an error
// wrapping [ErrAllocate] if the semaphore cannot be created.
func New(mode Mode, opts ...Option) (*Trigger, error) {
	if mode == nil {
		mode = Native()
	}
	s := settings{name: mode.String()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	t := &Trigger{
		name:     s.name,
		mode:     mode,
		handler:  s.handler,
		log:      s.log.With("trigger", s.name),
		waitSlot: make(chan struct{}, 1),
	}
	if s.enabled {
		t.lifecycle.Lock()
		err := t.enableLocked()
		t.lifecycle.Unlock()
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

// SetEnabled arms or disarms the Trigger and reports success. Enabling an
// enabled Trigger and disabling a disabled one are no-ops. The only failure
// is semaphore allocation on enable, after which the Trigger stays disabled
// and may be enabled again later.
func (t *Trigger) SetEnabled(on bool) bool {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()

	if on {
		return t.enableLocked() == nil
	}
	t.disableLocked()
	return true
}

// Close disables the Trigger, waiting for the monitor goroutine to exit.
func (t *Trigger) Close() error {
	t.SetEnabled(false)
	return nil
}

func (t *Trigger) enableLocked() error {
	// Only the caller that wins the exchange allocates. Until gen is
	// published the signal path sees enabled with no semaphore and bails.
	if !t.enabled.CompareAndSwap(false, true) {
		return nil
	}

	sem, err := newSemaphore()
	if err != nil {
		t.enabled.Store(false)
		t.failed.Store(true)
		t.log.Error("semaphore allocation failed", "error", err)
		return fmt.Errorf("%w: %w", ErrAllocate, err)
	}
	t.failed.Store(false)

	g := &generation{
		sem:     sem,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		handoff: make(chan Notification, handoffDepth),
	}
	t.mode.arm(t)
	t.gen.Store(g)
	go t.monitor(g)

	t.log.Debug("trigger enabled", "mode", t.mode.String())
	return nil
}

func (t *Trigger) disableLocked() {
	if !t.enabled.CompareAndSwap(true, false) {
		return
	}
	g := t.gen.Load()
	if g == nil {
		return
	}

	// Wake the monitor (or one blocked waiter) so it observes the disable.
	if err := g.sem.post(); err != nil {
		t.log.Warn("failed to post wakeup on disable", "error", err)
	}
	close(g.stop)
	<-g.done

	t.gen.Store(nil)
	if err := g.sem.close(); err != nil {
		t.log.Warn("failed to release semaphore", "error", err)
	}
	t.log.Debug("trigger disabled")
}

// monitor runs the mode's loop for one generation.
func (t *Trigger) monitor(g *generation) {
	defer close(g.done)
	t.mode.run(t, g)
	t.log.Debug("monitor exiting")
}

// ///////////////////////////////////////////////
// Signal Path
// ///////////////////////////////////////////////

// Trigger records payload and requests a notification. It never blocks,
// never allocates and takes no locks, so it may be called from the signal
// relay. A disabled Trigger only records the payload and returns false.
//
// In native mode it posts and returns true. In counting mode it returns
// true only for the call that completes a batch and posts.
func (t *Trigger) Trigger(payload int64) bool {
	t.pendingValue.Store(payload)
	t.pendingSet.Store(true)

	if !t.enabled.Load() {
		return false
	}
	g := t.gen.Load()
	if g == nil {
		return false
	}
	t.triggers.Add(1)
	return t.mode.fire(t, g.sem)
}

// ///////////////////////////////////////////////
// Waiting (native mode)
// ///////////////////////////////////////////////

// Wait blocks until the semaphore is posted, then hands a notification to
// the monitor. With checkFirst it polls instead and returns false at once if
// nothing is pending. payload overrides the pending payload when set. Always
// false in counting mode or while disabled.
func (t *Trigger) Wait(checkFirst bool, payload Payload) bool {
	return t.wait(payload, checkFirst, time.Time{})
}

// TimedWait is like [Trigger.Wait] but gives up after timeout. It returns
// false on timeout or interruption and never blocks past timeout. A
// non-positive timeout polls.
func (t *Trigger) TimedWait(timeout time.Duration, payload Payload) bool {
	if timeout <= 0 {
		return t.wait(payload, true, time.Time{})
	}
	return t.wait(payload, false, time.Now().Add(timeout))
}

func (t *Trigger) wait(payload Payload, poll bool, deadline time.Time) bool {
	if !t.mode.waitable() || !t.enabled.Load() {
		return false
	}
	g := t.gen.Load()
	if g == nil {
		return false
	}
	if !t.takeSlot(g, poll, deadline) {
		return false
	}
	defer func() { <-t.waitSlot }()

	if poll {
		ok, err := g.sem.tryAcquire()
		if err != nil || !ok {
			return false
		}
	} else if err := g.sem.acquire(deadline); err != nil {
		return false
	}

	// The disable wakeup is not a notification.
	if !t.enabled.Load() {
		return false
	}

	if !payload.set {
		payload = t.pendingPayload()
	}
	select {
	case g.handoff <- Notification{Payload: payload}:
		return true
	case <-g.stop:
		return false
	}
}

// takeSlot admits the caller as the single active waiter.
func (t *Trigger) takeSlot(g *generation, poll bool, deadline time.Time) bool {
	select {
	case t.waitSlot <- struct{}{}:
		return true
	default:
	}
	if poll {
		return false
	}

	var expired <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case t.waitSlot <- struct{}{}:
		return true
	case <-g.stop:
		return false
	case <-expired:
		return false
	}
}

// ///////////////////////////////////////////////
// Delivery
// ///////////////////////////////////////////////

func (t *Trigger) pendingPayload() Payload {
	return Payload{value: t.pendingValue.Load(), set: t.pendingSet.Load()}
}

func (t *Trigger) pendingNotification() Notification {
	return Notification{Payload: t.pendingPayload()}
}

// deliver numbers n and calls the handler. It only runs on the monitor
// goroutine. A panicking handler is logged and does not stop the monitor.
func (t *Trigger) deliver(n Notification) {
	n.Seq = t.notifications.Add(1)
	t.log.Debug("trigger fired", "payload", n.Payload.String(), "seq", n.Seq)
	if t.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("notification handler panic", "error", r, "seq", n.Seq)
		}
	}()
	t.handler(n)
}

// ///////////////////////////////////////////////
// Introspection
// ///////////////////////////////////////////////

// Enabled reports whether the Trigger is armed.
func (t *Trigger) Enabled() bool { return t.enabled.Load() }

// Valid reports whether the last enable attempt succeeded (or none was made).
// A valid Trigger may still be disabled.
func (t *Trigger) Valid() bool { return !t.failed.Load() }

// Value returns the triggers still needed to complete the current batch in
// counting mode. It is zero in native mode. A negative value means triggers
// arrived after a batch completed and before the monitor re-armed; the
// monitor credits that backlog to later batches.
func (t *Trigger) Value() int {
	return int(t.remaining.Load())
}

// Mode returns the mode the Trigger was built with.
func (t *Trigger) Mode() Mode { return t.mode }

// Name returns the Trigger's log label.
func (t *Trigger) Name() string { return t.name }

// Stats returns a snapshot of the Trigger's counters.
func (t *Trigger) Stats() Stats {
	return Stats{
		Triggers:      t.triggers.Load(),
		Posts:         t.posts.Load(),
		Notifications: t.notifications.Load(),
	}
}
