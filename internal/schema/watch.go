package schema

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce is how long Watch waits after the last file event before
// reloading. Editors often write a file in several steps.
const debounce = 100 * time.Millisecond

// Watch reloads the schema file at path whenever it changes and passes
// each valid result to fn. A file that fails to load is logged and fn is
// not called, so the previous declarations stay in effect. Watch blocks
// until ctx is done.
//
// The parent directory is watched rather than the file so that editors
// which replace the file by rename are still seen.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func(*File)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Info("watching schema", "path", abs)

	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			f, err := Load(abs)
			if err != nil {
				logger.Warn("schema reload failed, keeping previous declarations", "path", abs, "err", err)
				continue
			}
			logger.Info("schema reloaded", "path", abs, "locations", len(f.Locations))
			fn(f)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "err", err)
		}
	}
}
