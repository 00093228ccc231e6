// Package watch re-runs a lookup whenever its source file changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/vt-lookup/internal/logging"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 500 * time.Millisecond

// RunFunc performs one complete run.
type RunFunc func(ctx context.Context) error

// Watcher triggers a RunFunc on writes to one file.
type Watcher struct {
	path     string
	run      RunFunc
	debounce time.Duration
	logger   *zap.Logger
}

// New creates a Watcher for path.
func New(path string, run RunFunc, logger *zap.Logger) *Watcher {
	return &Watcher{path: path, run: run, debounce: DefaultDebounce, logger: logging.OrNop(logger)}
}

// Watch blocks until ctx is cancelled, calling run after each settled
// change to the file. The directory is watched rather than the file so
// editors that save by rename are still seen. Run errors are logged and
// watching continues.
func (w *Watcher) Watch(ctx context.Context) error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", w.path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch add: %w", err)
	}
	w.logger.Info("Watching source for changes", zap.String("path", abs))

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watch stopping", zap.String("path", abs))
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watch error", zap.Error(err))
		case <-timer.C:
			w.logger.Info("Source changed, re-running lookup", zap.String("path", abs))
			if err := w.run(ctx); err != nil {
				w.logger.Error("Lookup run failed", zap.Error(err))
			}
		}
	}
}
