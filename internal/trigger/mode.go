package trigger

import (
	"errors"
	"fmt"
	"syscall"
	"time"
)

// ///////////////////////////////////////////////
// Modes
// ///////////////////////////////////////////////

// Mode selects how triggers map onto notifications. It is fixed when the
// [Trigger] is built; use [Native] or [Counting].
type Mode interface {
	fmt.Stringer

	// arm resets per-generation counters before the monitor starts.
	arm(t *Trigger)
	// fire runs on the signal path after the payload has been stored.
	fire(t *Trigger, sem semaphore) bool
	// run is the monitor loop for one enabled generation.
	run(t *Trigger, g *generation)
	// waitable reports whether Wait and TimedWait apply.
	waitable() bool
}

// Native returns the pass-through mode: the semaphore count is the number of
// outstanding triggers. [Trigger.Trigger] posts and [Trigger.Wait] or
// [Trigger.TimedWait] consume.
func Native() Mode { return nativeMode{} }

// Counting returns the debouncing mode: every initial triggers produce one
// notification. Values below 1 are treated as 1.
func Counting(initial int) Mode {
	if initial < 1 {
		initial = 1
	}
	return countingMode{initial: int64(initial)}
}

// ///////////////////////////////////////////////
// Native
// ///////////////////////////////////////////////

type nativeMode struct{}

func (nativeMode) String() string { return "native" }

func (nativeMode) arm(*Trigger) {}

func (nativeMode) fire(t *Trigger, sem semaphore) bool {
	if sem.post() != nil {
		return false
	}
	t.posts.Add(1)
	return true
}

// run forwards notifications handed over by Wait and TimedWait. In native
// mode the semaphore belongs to the waiters, so the monitor never reads it.
func (nativeMode) run(t *Trigger, g *generation) {
	for {
		select {
		case <-g.stop:
			return
		case n := <-g.handoff:
			t.deliver(n)
		}
	}
}

func (nativeMode) waitable() bool { return true }

// ///////////////////////////////////////////////
// Counting
// ///////////////////////////////////////////////

type countingMode struct {
	initial int64
}

func (m countingMode) String() string { return fmt.Sprintf("counting(%d)", m.initial) }

func (m countingMode) arm(t *Trigger) {
	t.remaining.Store(m.initial)
}

// fire posts only on the decrement that lands exactly on zero. Triggers that
// arrive after that and before the monitor re-arms push the counter below
// zero and are credited to the next batch by run.
func (countingMode) fire(t *Trigger, sem semaphore) bool {
	if t.remaining.Add(-1) != 0 {
		return false
	}
	if sem.post() != nil {
		return false
	}
	t.posts.Add(1)
	return true
}

func (m countingMode) run(t *Trigger, g *generation) {
	for {
		err := g.sem.acquire(time.Time{})
		switch {
		case err == nil:
		case errors.Is(err, syscall.EINTR):
			continue
		case errors.Is(err, errSemaphoreClosed):
			return
		default:
			if !t.enabled.Load() {
				return
			}
			t.log.Debug("semaphore wait failed, retrying", "error", err)
			continue
		}

		if !t.enabled.Load() {
			return
		}

		// Re-arm, then emit once for the batch that posted plus once for
		// every further full batch that completed while nobody was armed.
		// The backlog is dropped once the trigger is disabled.
		left := t.remaining.Add(m.initial)
		t.deliver(t.pendingNotification())
		for left <= 0 {
			if !t.enabled.Load() {
				return
			}
			left = t.remaining.Add(m.initial)
			t.deliver(t.pendingNotification())
		}
	}
}

func (countingMode) waitable() bool { return false }
