package content

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses the create+write+rename burst an atomic snapshot
// write produces into a single reload.
const debounce = 500 * time.Millisecond

// Watch reloads the snapshot file into the handle whenever it changes on
// disk. It watches the file's directory so the rename done by Write is
// seen, and debounces event bursts into one reload. Blocks until ctx is
// done; intended to run in its own goroutine.
func Watch(ctx context.Context, path string, h *Handle, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("content: create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("content: watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("snapshot watcher error", "error", err)

		case <-timer.C:
			snap, err := Load(path)
			if err != nil {
				logger.Error("snapshot reload failed, keeping current", "path", path, "error", err)
				continue
			}
			prev := h.Swap(snap)
			prevLen := 0
			if prev != nil {
				prevLen = prev.Len()
			}
			logger.Info("snapshot reloaded",
				"path", path, "items", snap.Len(), "dims", snap.Dims(), "previous_items", prevLen)
		}
	}
}
