package bridge

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
	"github.com/stefanhoelzl/codehydra-sub002/internal/workspace"
)

// Watcher unregisters workspaces whose root directory disappears from disk.
// A workspace removed out-of-band behaves like an explicit unregister: its
// identity is gone and its first-request tracking is cleared.
type Watcher struct {
	manager *Manager
	log     *logger.Logger
	fs      *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string]struct{}
	closed  bool
}

// NewWatcher starts a filesystem watcher bound to the given manager
func NewWatcher(manager *Manager, log *logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.Discard()
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	w := &Watcher{
		manager: manager,
		log:     log.WithPrefix("watcher"),
		fs:      fs,
		watched: make(map[string]struct{}),
	}

	go w.run()

	return w, nil
}

// Watch adds a workspace root to the watch set
func (w *Watcher) Watch(path string) error {
	normalized := workspace.NormalizePath(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("watcher is closed")
	}
	if _, ok := w.watched[normalized]; ok {
		return nil
	}

	if err := w.fs.Add(normalized); err != nil {
		return fmt.Errorf("failed to watch %s: %w", normalized, err)
	}
	w.watched[normalized] = struct{}{}

	return nil
}

// Unwatch removes a workspace root from the watch set. Unknown paths are a
// no-op.
func (w *Watcher) Unwatch(path string) {
	normalized := workspace.NormalizePath(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.watched[normalized]; !ok {
		return
	}
	delete(w.watched, normalized)

	// Removing a watch for an already-deleted directory fails; that is fine
	if err := w.fs.Remove(normalized); err != nil {
		w.log.Debug("Failed to remove watch for %s: %v", normalized, err)
	}
}

// Close stops the watcher
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	return w.fs.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			normalized := workspace.NormalizePath(event.Name)

			w.mu.Lock()
			_, tracked := w.watched[normalized]
			if tracked {
				delete(w.watched, normalized)
			}
			w.mu.Unlock()

			if tracked {
				w.log.Info("Workspace root %s disappeared, unregistering", normalized)
				w.manager.UnregisterWorkspace(normalized)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("Filesystem watcher error: %v", err)
		}
	}
}
