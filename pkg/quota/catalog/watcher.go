package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a catalog from its YAML file when the file changes.
// Editors often produce bursts of write events, so reloads are debounced.
// A reload that fails to parse keeps the previous table in effect.
type Watcher struct {
	catalog  *Catalog
	path     string
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher that keeps catalog in sync with the file
// at path. The watcher does not start until Watch is called.
func NewWatcher(c *Catalog, path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		catalog:  c,
		path:     path,
		watcher:  fsw,
		logger:   logger.With("component", "quota.catalog.watcher"),
		debounce: 100 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks processing file events until the context is cancelled or
// Stop is called. Watching the parent directory instead of the file itself
// survives rename-based atomic saves.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.path, err)
	}

	w.logger.Info("catalog watcher started", "path", w.path)

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.stopCh:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.shouldProcess(event) {
				continue
			}

			w.logger.Debug("catalog file event", "path", event.Name, "op", event.Op.String())

			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			// Keep watching despite transient errors.
			w.logger.Error("catalog watcher error", "error", err)
		}
	}
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	return w.watcher.Close()
}

func (w *Watcher) shouldProcess(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.path)
}

func (w *Watcher) reload() {
	replacement, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error("catalog reload failed, keeping previous table", "error", err)
		return
	}

	replacement.mu.RLock()
	entries := replacement.entries
	def := replacement.defaultEntry
	replacement.mu.RUnlock()

	if err := w.catalog.Replace(entries, def); err != nil {
		w.logger.Error("catalog replace failed", "error", err)
		return
	}

	w.logger.Info("catalog reloaded", "path", w.path, "models", len(entries))
}
