package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors envFile for changes and calls onChange with the newly loaded
// Config each time the file is written. It runs until ctx is cancelled.
//
// The parent directory is watched rather than the file itself so that
// atomic-save editors (write temp, rename over) keep triggering reloads.
// A reload that fails validation is logged and onChange is not called.
func Watch(ctx context.Context, envFile string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(envFile)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", envFile)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(envFile)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", envFile, "err", err)
				continue
			}

			slog.Info("config: reloaded", "path", envFile)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
