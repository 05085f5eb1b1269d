package menu

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/m3rciful/menubot/core/dialog"
	"github.com/m3rciful/menubot/core/logger"
)

const debounceInterval = 100 * time.Millisecond

// Target receives freshly loaded catalogs.
type Target interface {
	SetCatalog(*dialog.Catalog)
}

// Watcher reloads the menu file on change and hands valid catalogs to the target.
// Invalid edits are logged and the previous catalog stays active.
type Watcher struct {
	path   string
	target Target

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewWatcher prepares a watcher for path.
func NewWatcher(path string, target Target) *Watcher {
	return &Watcher{path: filepath.Clean(path), target: target}
}

// Start begins watching. The parent directory is watched so editors that
// replace the file through a rename are picked up.
func (w *Watcher) Start() error {
	if w.target == nil {
		return errors.New("menu: nil watch target")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.eventLoop(ctx)

	logger.Info(ctx, "menu", "watch.start", slog.String("path", w.path))
	return nil
}

// Stop ends watching and cancels any pending reload.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.watcher.Close()
	<-w.done

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()
	w.cancel = nil
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
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
			w.schedule(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn(ctx, "menu", "watch.error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceInterval, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload(ctx)
	})
}

func (w *Watcher) reload(ctx context.Context) {
	cat, err := Load(w.path)
	if err != nil {
		logger.Warn(ctx, "menu", "reload.fail",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}
	w.target.SetCatalog(cat)
	logger.Info(ctx, "menu", "reload.ok",
		slog.String("path", w.path),
		slog.Int("options", len(cat.Options())),
	)
}
