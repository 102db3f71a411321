package connection

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"dvbox/pkg/logging"
)

// Watcher reloads the store whenever the settings document changes on
// disk, typically because the desktop shell edited a connection while
// we hold the set in memory.
type Watcher struct {
	file    *SettingsFile
	store   *Store
	watcher *fsnotify.Watcher
	done    chan struct{}
	started bool
}

// NewWatcher creates a watcher for the settings document backing the
// given store. It watches the parent directory because both we and the
// shell replace the file by rename, which retires the old inode.
func NewWatcher(file *SettingsFile, store *Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create settings watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(file.Path())); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch settings directory: %w", err)
	}
	return &Watcher{
		file:    file,
		store:   store,
		watcher: fsw,
		done:    make(chan struct{}),
	}, nil
}

// Start consumes filesystem events until the context is cancelled or
// Stop is called. Call it at most once.
func (w *Watcher) Start(ctx context.Context) {
	w.started = true
	go w.run(ctx)
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	target := filepath.Clean(w.file.Path())

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Connections", "Settings watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	conns, err := w.file.LoadConnections()
	if err != nil {
		logging.Error("Connections", err, "Failed to reload settings after change")
		return
	}
	logging.Debug("Connections", "Settings changed on disk, merging %d connections", len(conns))
	w.store.Reload(conns)
}

// Stop closes the underlying watcher and waits for the event loop to
// drain.
func (w *Watcher) Stop() {
	w.watcher.Close()
	if w.started {
		<-w.done
	}
}
