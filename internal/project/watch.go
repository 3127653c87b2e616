package project

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/satindergrewal/segue/internal/logger"
)

// settle is how long the file must stay quiet before it is re-read.
const settle = 100 * time.Millisecond

// Watch reloads the project whenever another process rewrites the file.
// Writes made by Save are recognised and skipped. A document that fails
// to decode is logged and the current snapshot kept. Watch blocks until
// ctx is cancelled.
func (w *Workspace) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	// editors replace files by rename, so watch the directory
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	logger.Info("watching project file", logger.String("path", target))

	var pending time.Time
	check := time.NewTicker(50 * time.Millisecond)
	defer check.Stop()

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
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("project watcher error", logger.Err(err))

		case <-check.C:
			if pending.IsZero() || time.Since(pending) < settle {
				continue
			}
			pending = time.Time{}
			w.reload()
		}
	}
}

func (w *Workspace) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		logger.Warn("project reload failed", logger.String("path", w.path), logger.Err(err))
		return
	}
	w.mu.Lock()
	same := sha256.Sum256(data) == w.digest
	w.mu.Unlock()
	if same {
		return
	}
	if err := w.apply(data); err != nil {
		logger.Warn("project reload failed, keeping current graph", logger.String("path", w.path), logger.Err(err))
		return
	}
	logger.Info("project reloaded", logger.String("path", w.path), logger.Int("tracks", w.Graph().TrackCount()))
}
