package catalog

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the config file on change and hands each successfully
// reloaded Config to onReload. Editors often replace files with rename or
// remove plus create, so the parent directory is watched and events are
// filtered by name. Reload failures are logged and skipped; the previous
// configuration stays in effect.
func (l *Loader) Watch(ctx context.Context, path string, onReload func(Config)) error {
	if path == "" || onReload == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-watcher.Errors:
				if err != nil {
					l.logger.Warn("config watcher error", zap.Error(err))
				}
			case event := <-watcher.Events:
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
					continue
				}
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(reloadDebounce)
			case <-timerChan(timer):
				timer = nil
				cfg, err := l.Load(NewViper(), path)
				if err != nil {
					l.logger.Warn("config reload failed", zap.Error(err))
					continue
				}
				l.logger.Info("config reloaded", zap.String("path", path))
				onReload(cfg)
			}
		}
	}()
	return nil
}

func timerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
