package trigger

import (
	"errors"
	"time"
)

var (
	errSemaphoreClosed  = errors.New("semaphore closed")
	errSemaphoreTimeout = errors.New("semaphore wait timed out")
)

// semaphore is a counting semaphore. post is called from the signal relay
// and must not lock or allocate; the other methods run on ordinary
// goroutines.
type semaphore interface {
	// post increments the count, releasing one waiter.
	post() error
	// acquire blocks until the count is positive and decrements it. A zero
	// deadline blocks indefinitely. Returns errSemaphoreTimeout once the
	// deadline passes and errSemaphoreClosed after close.
	acquire(deadline time.Time) error
	// tryAcquire decrements the count if it is positive without blocking.
	tryAcquire() (bool, error)
	// close releases the semaphore and wakes all blocked acquirers.
	close() error
}

// newSemaphore allocates the platform semaphore. Tests swap it out to
// simulate allocation failure.
var newSemaphore = newPlatformSemaphore
