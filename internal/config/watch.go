package config

import (
	"context"
	"path/filepath"
	"time"

	"imba/internal/logger"

	"github.com/fsnotify/fsnotify"
)

// Reloadable is the subset of configuration that may change while the
// engine runs. Everything else requires a restart.
type Reloadable struct {
	LogLevel string
	Risk     RiskConfig
}

// Watch re-reads the config file whenever it changes and delivers the
// reloadable subset to apply. A reload that fails validation is logged
// and dropped; the running config stays untouched. Watch blocks until
// ctx is done.
func Watch(ctx context.Context, path string, apply func(Reloadable)) error {
	if path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops
	// a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	var debounce *time.Timer
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
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, func() {
				reload(path, apply)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("config watcher error: %v", err)
		}
	}
}

func reload(path string, apply func(Reloadable)) {
	cfg, err := Load(path)
	if err != nil {
		logger.Warnf("config reload rejected: %v", err)
		return
	}
	logger.Infof("config reloaded from %s (risk limits + log level applied)", path)
	apply(Reloadable{LogLevel: cfg.App.LogLevel, Risk: cfg.Risk})
}
