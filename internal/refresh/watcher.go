package refresh

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Invalidator is satisfied by *session.Session.
type Invalidator interface {
	Invalidate()
}

// Watcher drops the session table when the local CSV export changes, so the
// next request reads the new file.
type Watcher struct {
	Path        string
	Invalidator Invalidator
	Logger      *zap.Logger
	// Debounce collapses the burst of events a single save produces.
	Debounce time.Duration
	// OnChange runs after each invalidation; optional.
	OnChange func()
}

// Run blocks until ctx is cancelled. The parent directory is watched rather
// than the file because editors and exporters often replace the file.
func (w *Watcher) Run(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(w.Path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	logger.Info("Watching CSV file", zap.String("path", target))

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			logger.Debug("CSV file event", zap.String("op", event.Op.String()))
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error", zap.Error(err))
		case <-timer.C:
			w.Invalidator.Invalidate()
			logger.Info("CSV file changed, usage table invalidated", zap.String("path", target))
			if w.OnChange != nil {
				w.OnChange()
			}
		}
	}
}
