//go:build linux

// Linux semaphore backed by an eventfd in semaphore mode.
//
// With EFD_SEMAPHORE every read returns 1 and decrements the kernel counter
// by one, and every 8-byte write adds to it, which gives plain counting
// semaphore semantics. write(2) on an eventfd is async-signal-safe. The fd
// is opened non-blocking and wrapped in an *os.File so the runtime poller
// handles blocking reads, read deadlines and wake-on-close.

package trigger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ///////////////////////////////////////////////
// eventfd Semaphore
// ///////////////////////////////////////////////

type eventfdSemaphore struct {
	// f owns the eventfd descriptor.
	f *os.File
	// rc exposes the raw descriptor for non-blocking polls.
	rc syscall.RawConn
	// one is the encoded increment written by post, kept on the struct so
	// post does not build a buffer per call.
	one [8]byte
}

func newPlatformSemaphore() (semaphore, error) {
	fd, err := unix.Eventfd(0, unix.EFD_SEMAPHORE|unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	f := os.NewFile(uintptr(fd), "trigger-eventfd")
	rc, err := f.SyscallConn()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("eventfd raw conn: %w", err)
	}
	s := &eventfdSemaphore{f: f, rc: rc}
	binary.NativeEndian.PutUint64(s.one[:], 1)
	return s, nil
}

func (s *eventfdSemaphore) post() error {
	_, err := s.f.Write(s.one[:])
	return mapFileErr(err)
}

func (s *eventfdSemaphore) acquire(deadline time.Time) error {
	if err := s.f.SetReadDeadline(deadline); err != nil {
		return mapFileErr(err)
	}
	var buf [8]byte
	_, err := s.f.Read(buf[:])
	return mapFileErr(err)
}

func (s *eventfdSemaphore) tryAcquire() (bool, error) {
	// A deadline left over from a timed acquire would make the poller
	// refuse the read before it reaches the syscall.
	if err := s.f.SetReadDeadline(time.Time{}); err != nil {
		return false, mapFileErr(err)
	}
	var (
		buf  [8]byte
		rerr error
	)
	err := s.rc.Read(func(fd uintptr) bool {
		_, rerr = unix.Read(int(fd), buf[:])
		return true
	})
	if err != nil {
		return false, mapFileErr(err)
	}
	switch {
	case rerr == nil:
		return true, nil
	case errors.Is(rerr, unix.EAGAIN):
		return false, nil
	default:
		return false, rerr
	}
}

func (s *eventfdSemaphore) close() error {
	return s.f.Close()
}

// mapFileErr translates *os.File errors into the semaphore sentinels.
func mapFileErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrClosed):
		return errSemaphoreClosed
	case errors.Is(err, os.ErrDeadlineExceeded):
		return errSemaphoreTimeout
	default:
		return err
	}
}
