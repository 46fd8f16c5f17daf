package trigger

import (
	"sync"
	"sync/atomic"
	"time"
)

// chanSemaphoreDepth bounds the outstanding count of a chanSemaphore. Posts
// beyond it saturate instead of blocking.
const chanSemaphoreDepth = 1 << 12

// chanSemaphore is the in-process semaphore used where no kernel counting
// semaphore is available. Tokens are buffered channel slots.
type chanSemaphore struct {
	tokens chan struct{}
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
}

func newChanSemaphore() (semaphore, error) {
	return &chanSemaphore{
		tokens: make(chan struct{}, chanSemaphoreDepth),
		done:   make(chan struct{}),
	}, nil
}

func (s *chanSemaphore) post() error {
	if s.closed.Load() {
		return errSemaphoreClosed
	}
	select {
	case s.tokens <- struct{}{}:
	default:
		// Saturated; the waiter will still see a positive count.
	}
	return nil
}

func (s *chanSemaphore) acquire(deadline time.Time) error {
	if deadline.IsZero() {
		select {
		case <-s.tokens:
			return nil
		case <-s.done:
			return errSemaphoreClosed
		}
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-s.tokens:
		return nil
	case <-s.done:
		return errSemaphoreClosed
	case <-timer.C:
		return errSemaphoreTimeout
	}
}

func (s *chanSemaphore) tryAcquire() (bool, error) {
	if s.closed.Load() {
		return false, errSemaphoreClosed
	}
	select {
	case <-s.tokens:
		return true, nil
	default:
		return false, nil
	}
}

func (s *chanSemaphore) close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
	return nil
}
