// Package pidfile enforces a single running daemon per data directory.
//
// The PID file holds "PID:TOKEN" and stays open with an exclusive advisory
// lock for the lifetime of the daemon. The lock, not the file's presence, is
// what marks an instance as alive: a file left behind by a crashed process is
// stale as soon as its lock can be taken.
package pidfile

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ErrRunning is returned by [Acquire] when another instance holds the lock.
var ErrRunning = errors.New("another instance is running")

// File is a held PID file lock.
type File struct {
	mu    sync.Mutex
	f     *os.File
	path  string
	token string
}

// Token returns the random token written alongside the PID.
func (p *File) Token() string { return p.token }

// Path returns the PID file's path.
func (p *File) Path() string { return p.path }

func newToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Acquire creates or opens the PID file at path, locks it, and writes this
// process's PID and a fresh token. Keep the returned File until shutdown and
// pass it to [File.Release].
func Acquire(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create PID directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if pid := readPID(path); pid > 0 {
			return nil, fmt.Errorf("%w (PID %d): %v", ErrRunning, pid, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrRunning, err)
	}

	token := newToken()
	fail := func(step string, err error) (*File, error) {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("%s PID file: %w", step, err)
	}
	if err := f.Truncate(0); err != nil {
		return fail("truncate", err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d:%s", os.Getpid(), token)), 0); err != nil {
		return fail("write", err)
	}
	return &File{f: f, path: path, token: token}, nil
}

// Release drops the lock and removes the file if it still carries this
// instance's token. It is safe to call more than once and from several
// goroutines.
func (p *File) Release() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.f == nil {
		return nil
	}
	_ = unlockFile(p.f)
	err := p.f.Close()
	p.f = nil

	data, readErr := os.ReadFile(p.path)
	if readErr != nil {
		return err
	}
	parts := strings.SplitN(string(data), ":", 2)
	if len(parts) == 2 && parts[1] == p.token {
		if rmErr := os.Remove(p.path); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}

// Running reports whether another instance holds the lock on path and, if
// so, its PID. It never modifies path: a stale file left by a dead instance
// is taken over by the next Acquire.
func Running(path string) (alive bool, pid int) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		f.Close()
		return true, readPID(path)
	}

	_ = unlockFile(f)
	f.Close()
	return false, 0
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	head, _, _ := strings.Cut(string(data), ":")
	pid, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return pid
}
