package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/caregate/caregate/pkg/observability"
)

// WatchPolicyFile invokes reload whenever path is written, created or
// renamed (editors often replace rather than write in place). The watch is
// on the parent directory so atomic-rename saves are seen. It runs until ctx
// is canceled. Reload failures are logged and the previous policies stay in
// effect.
func WatchPolicyFile(ctx context.Context, path string, logger *observability.Logger, reload func(path string) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := reload(path); err != nil {
					logger.WithError(err).WithField("file", path).Error("Rate limit policy reload failed, keeping previous policies")
					continue
				}
				logger.WithField("file", path).Info("Rate limit policies reloaded")

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("Policy file watcher error")
			}
		}
	}()

	return nil
}
