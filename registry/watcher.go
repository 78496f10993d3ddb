package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/liamcoop/decisions/internal/logger"
)

// FileWatcher reloads the model directory when files in it change. Bursts
// of events are coalesced into one reload per debounce interval.
type FileWatcher struct {
	manager  *Manager
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	mu        sync.Mutex
	timer     *time.Timer
	reloads   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewFileWatcher watches dir for the manager. A non-positive debounce uses
// 100ms.
func NewFileWatcher(m *Manager, dir string, debounce time.Duration) (*FileWatcher, error) {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &FileWatcher{
		manager:  m,
		dir:      dir,
		debounce: debounce,
		watcher:  w,
		logger:   m.logger.With("watcher", dir),
		reloads:  make(chan struct{}, 1),
	}, nil
}

// Run processes events until ctx is cancelled, then closes the watcher.
// Run on a closed watcher returns an error.
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer fw.Close()

	fw.logger.InfoContext(ctx, "file watcher started", "debounce_ms", fw.debounce.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			fw.logger.Info("file watcher stopped")
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !fw.relevant(event) {
				continue
			}
			fw.logger.DebugContext(ctx, "model file event", "path", event.Name, "op", event.Op.String())
			fw.schedule()

		case <-fw.reloads:
			if err := fw.manager.LoadDirectory(ctx, fw.dir); err != nil {
				logger.WarnReloadFailure()
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			fw.logger.Error("file watcher error", "error", err)
		}
	}
}

// Close stops watching the directory. It is safe to call more than once and
// alongside Run.
func (fw *FileWatcher) Close() error {
	fw.closeOnce.Do(func() {
		fw.stopTimer()
		fw.closeErr = fw.watcher.Close()
	})
	return fw.closeErr
}

func (fw *FileWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return isModelFile(filepath.Base(event.Name))
}

// schedule (re)arms the debounce timer. The reload itself runs on the Run
// goroutine.
func (fw *FileWatcher) schedule() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, func() {
		select {
		case fw.reloads <- struct{}{}:
		default:
		}
	})
}

func (fw *FileWatcher) stopTimer() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
	}
}
