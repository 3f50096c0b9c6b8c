package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadFunc receives a freshly loaded and validated config
type ReloadFunc func(cfg *Config)

// Watcher reloads the config file when it changes on disk
type Watcher struct {
	loader   *Loader
	path     string
	debounce time.Duration
	onReload ReloadFunc
	logger   zerolog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	Path     string
	Debounce time.Duration
	OnReload ReloadFunc
	Logger   zerolog.Logger
}

// NewWatcher creates a config watcher
func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.Debounce == 0 {
		cfg.Debounce = 200 * time.Millisecond
	}
	return &Watcher{
		loader:   NewLoader(cfg.Path),
		path:     filepath.Clean(cfg.Path),
		debounce: cfg.Debounce,
		onReload: cfg.OnReload,
		logger:   cfg.Logger,
	}
}

// Run watches until ctx is cancelled. The parent directory is watched so that
// editors replacing the file through a rename are still observed.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	w.logger.Info().Str("path", w.path).Msg("Config watcher started")
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Config watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("Config reload failed, keeping previous config")
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("Reloaded config is invalid, keeping previous config")
		return
	}

	w.logger.Info().Str("path", w.path).Msg("Config reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
