package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chatdeck/chatdeck/internal/logging"
)

var cfgLog = logging.ForComponent(logging.CompConfig)

// debounceWindow coalesces the write bursts editors produce into one reload.
const debounceWindow = 250 * time.Millisecond

// Watch reloads the config whenever the file at path changes and hands the
// result to onChange. It blocks until ctx is done. The parent directory is
// watched rather than the file itself so atomic rename-saves keep working.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	var timer *time.Timer
	var timerCh <-chan time.Time

	reload := func() {
		cfg, err := Load(target)
		if err != nil {
			cfgLog.Warn("config_reload_failed", slog.String("error", err.Error()))
			return
		}
		cfgLog.Info("config_reloaded", slog.String("path", target))
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerCh = timer.C
			} else {
				timer.Reset(debounceWindow)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cfgLog.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}
