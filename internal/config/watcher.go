package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher reports changes to the config file. It watches the parent
// directory so atomic replace-by-rename saves are seen, and falls back to
// polling when fsnotify is unavailable.
type Watcher struct {
	// path is the config file being monitored.
	path string
	// events is buffered to 1 so back-to-back writes coalesce.
	events chan struct{}
	// done is closed by [Watcher.Close].
	done chan struct{}
	// fsw is nil when polling.
	fsw  *fsnotify.Watcher
	once sync.Once
	// polling is true once the watcher has fallen back to stat polling.
	polling      atomic.Bool
	pollInterval time.Duration
	log          *slog.Logger
}

// NewWatcher starts watching the config file at path. The file does not
// need to exist yet.
func NewWatcher(path string, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	w := &Watcher{
		path:         path,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: 2 * time.Second,
		log:          log,
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Info("fsnotify unavailable, polling config", "error", err)
		w.startPolling()
		return w, nil
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		w.log.Info("cannot watch config directory, polling", "path", path, "error", err)
		fsw.Close()
		w.startPolling()
		return w, nil
	}

	w.fsw = fsw
	go w.watch()
	return w, nil
}

// Events returns a channel that receives a value after the config changes.
func (w *Watcher) Events() <-chan struct{} { return w.events }

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool { return w.polling.Load() }

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
		}
	})
	return err
}

func (w *Watcher) watch() {
	base := filepath.Base(w.path)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.notify()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Info("fsnotify error, switching to polling", "error", err)
			w.fsw.Close()
			w.startPolling()
			return
		}
	}
}

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	go w.poll()
}

// poll stats the config file and notifies when its modification time or
// size changes.
func (w *Watcher) poll() {
	last := w.stat()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			cur := w.stat()
			if !cur.same(last) {
				last = cur
				w.notify()
			}
		}
	}
}

type fileStamp struct {
	mod  time.Time
	size int64
}

func (s fileStamp) same(o fileStamp) bool {
	return s.mod.Equal(o.mod) && s.size == o.size
}

func (w *Watcher) stat() fileStamp {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}
}

// notify coalesces rapid successive changes into one pending event.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
