package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce coalesces the event bursts a file rewrite produces into
// one reload.
const reloadDebounce = 500 * time.Millisecond

// reloader is the slice of the Loader the watcher needs.
type reloader interface {
	Load(ctx context.Context, src Source, reload bool) (LoadResult, error)
}

// Watcher reloads the catalog when its CSV source changes on disk.
//
// A failed reload keeps the prior catalog (the loader's pre-swap guarantee),
// so a half-written or broken file never takes the service down.
type Watcher struct {
	path     string
	loader   reloader
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger
	stop     chan struct{}
}

// NewWatcher creates a watcher for the given CSV path.
func NewWatcher(path string, loader reloader, logger *zap.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}

	return &Watcher{
		path:     filepath.Clean(path),
		loader:   loader,
		watcher:  fw,
		debounce: reloadDebounce,
		logger:   logger.Named("watcher"),
		stop:     make(chan struct{}),
	}, nil
}

// Start begins watching. Events are processed on a background goroutine;
// call Stop to release the watch.
func (w *Watcher) Start(ctx context.Context) error {
	// Watch the parent directory: editors and atomic writers replace the
	// file, which silently drops a watch registered on the file itself.
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go w.processEvents(ctx)

	w.logger.Info("watching catalog source", zap.String("path", w.path))
	return nil
}

// Stop stops the watcher and cleans up resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		// Already stopped
	default:
		close(w.stop)
		_ = w.watcher.Close() // Best-effort cleanup
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(w.debounce, func() {
				w.reload(ctx)
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	result, err := w.loader.Load(ctx, NewCSVSource(w.path), true)
	if err != nil {
		w.logger.Error("catalog reload failed, keeping prior catalog",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}
	w.logger.Info("catalog reloaded",
		zap.String("path", w.path),
		zap.Int("terms", result.TotalLoaded))
}
