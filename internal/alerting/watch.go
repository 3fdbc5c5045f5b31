package alerting

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/datamantri/internal/models"
)

// DefaultReloadDelay coalesces the burst of events editors emit on save.
const DefaultReloadDelay = 250 * time.Millisecond

// ApplyFunc receives a freshly loaded set of alert definitions.
type ApplyFunc func(ctx context.Context, alerts []*models.Alert) error

// FileWatcher reloads an alert definition file whenever it changes on disk.
type FileWatcher struct {
	path    string
	apply   ApplyFunc
	delay   time.Duration
	logger  *zap.Logger
	watcher *fsnotify.Watcher
}

// NewFileWatcher watches path's directory so that atomic renames by editors
// are seen as well as in-place writes.
func NewFileWatcher(path string, apply ApplyFunc, logger *zap.Logger) (*FileWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return &FileWatcher{
		path:    absPath,
		apply:   apply,
		delay:   DefaultReloadDelay,
		logger:  logger.Named("alert-watcher"),
		watcher: watcher,
	}, nil
}

// Run blocks until ctx is cancelled. A file that fails to parse is logged and
// the previously applied definitions stay in place.
func (w *FileWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != w.path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			timer.Reset(w.delay)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *FileWatcher) reload(ctx context.Context) {
	alerts, err := LoadAlertsFromFile(w.path)
	if err != nil {
		w.logger.Error("reload alerts", zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := w.apply(ctx, alerts); err != nil {
		w.logger.Error("apply alerts", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("alerts reloaded", zap.String("path", w.path), zap.Int("count", len(alerts)))
}
