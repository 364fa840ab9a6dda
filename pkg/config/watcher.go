package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay debounces editor write bursts into a single reload.
const reloadDelay = 500 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk.
type Watcher struct {
	loader  *Loader
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a config watcher backed by the given loader.
func NewWatcher(loader *Loader, logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader: loader,
		logger: logger.With().Str("component", "config-watcher").Logger(),
	}
}

// Watch starts watching the config file at path. Each successful reload
// calls onChange with the freshly validated config; reloads that fail
// validation are logged and skipped, keeping the previous config in effect.
// Watching stops when ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	// Watch the directory rather than the file itself so atomic
	// rename-over-save (vim, kubernetes configmaps) is still observed.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.processEvents(ctx, path, onChange)

	w.logger.Info().
		Str("path", path).
		Msg("Started watching config file")

	return nil
}

// processEvents processes file system events and triggers debounced reloads.
func (w *Watcher) processEvents(ctx context.Context, path string, onChange func(*Config)) {
	var reloadTimer *time.Timer

	target, err := filepath.Abs(path)
	if err != nil {
		target = path
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Config file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				w.reload(path, onChange)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// reload loads and validates the config, invoking onChange only on success.
func (w *Watcher) reload(path string, onChange func(*Config)) {
	if _, err := os.Stat(path); err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("Config file unavailable, keeping previous config")
		return
	}

	cfg, err := w.loader.Load(path)
	if err != nil {
		w.logger.Error().Err(err).Str("path", path).Msg("Config reload failed, keeping previous config")
		return
	}

	w.logger.Info().
		Str("path", path).
		Str("beamline", cfg.Beamline).
		Msg("Config reloaded")

	onChange(cfg)
}

// Stop stops watching for file changes.
func (w *Watcher) Stop() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
