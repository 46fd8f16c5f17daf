// Package shutdown builds the bounded cleanup that runs between a
// termination signal and its re-raise.
//
// A [Sequence] is an ordered list of named steps. Every step runs even if an
// earlier one failed; failures are collected into a single multierror. Once
// the context expires the remaining steps are skipped.
package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Step is one unit of cleanup.
type Step struct {
	// Name labels the step in logs and errors.
	Name string
	// Run performs the step. It should return promptly once ctx is done.
	Run func(ctx context.Context, sig os.Signal) error
}

// Sequence runs steps in order. It is safe to Add while another goroutine
// holds the Sequence, but Run takes a snapshot of the steps when it starts.
type Sequence struct {
	log *slog.Logger

	mu    sync.Mutex
	steps []Step
}

// New returns a Sequence with the given steps. A nil logger means
// [slog.Default].
func New(log *slog.Logger, steps ...Step) *Sequence {
	if log == nil {
		log = slog.Default()
	}
	return &Sequence{log: log.With("component", "shutdown"), steps: steps}
}

// Add appends steps to the end of the sequence.
func (s *Sequence) Add(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

// Len returns the number of steps.
func (s *Sequence) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// Run executes every step for sig. Its signature matches
// bridge.ShutdownFunc.
func (s *Sequence) Run(ctx context.Context, sig os.Signal) error {
	s.mu.Lock()
	steps := append([]Step(nil), s.steps...)
	s.mu.Unlock()

	var result *multierror.Error
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			s.log.Warn("cleanup cut short", "skipped", len(steps)-i, "error", err)
			result = multierror.Append(result, fmt.Errorf("%d steps skipped: %w", len(steps)-i, err))
			break
		}

		start := time.Now()
		err := step.Run(ctx, sig)
		if err != nil {
			s.log.Error("cleanup step failed", "step", step.Name, "error", err)
			result = multierror.Append(result, fmt.Errorf("%s: %w", step.Name, err))
			continue
		}
		s.log.Debug("cleanup step done", "step", step.Name, "elapsed", time.Since(start).Round(time.Millisecond))
	}
	return result.ErrorOrNil()
}

// ///////////////////////////////////////////////
// Built-in Steps
// ///////////////////////////////////////////////

// Delay waits d before letting the sequence continue, giving in-flight work
// time to settle. It ends early when ctx expires, which is not an error.
func Delay(d time.Duration) Step {
	return Step{
		Name: "delay",
		Run: func(ctx context.Context, _ os.Signal) error {
			if d <= 0 {
				return nil
			}
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
			}
			return nil
		},
	}
}

// Func wraps an arbitrary callback as a step.
func Func(name string, fn func(ctx context.Context) error) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, _ os.Signal) error {
			return fn(ctx)
		},
	}
}
