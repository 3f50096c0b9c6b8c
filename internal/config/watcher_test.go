package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "smprofiler.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"logging": {"level": "info"}}`), 0o644))

	var lastLevel atomic.Value
	w := NewWatcher(WatcherConfig{
		Path:     configPath,
		Debounce: 10 * time.Millisecond,
		Logger:   zerolog.New(os.Stdout).Level(zerolog.Disabled),
		OnReload: func(cfg *Config) { lastLevel.Store(cfg.Logging.Level) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The watcher may not be registered yet on the first writes.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(configPath, []byte(`{"logging": {"level": "debug"}}`), 0o644)
		return lastLevel.Load() == "debug"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherKeepsPreviousOnInvalidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "smprofiler.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"server": {"port": 0}}`), 0o644))

	var calls atomic.Int32
	w := NewWatcher(WatcherConfig{
		Path:     configPath,
		Logger:   zerolog.New(os.Stdout).Level(zerolog.Disabled),
		OnReload: func(*Config) { calls.Add(1) },
	})

	w.reload()
	assert.Equal(t, int32(0), calls.Load())

	require.NoError(t, os.WriteFile(configPath, []byte(`{"server": {"port": 8081}}`), 0o644))
	w.reload()
	assert.Equal(t, int32(1), calls.Load())
}

func TestWatcherMissingDirectory(t *testing.T) {
	w := NewWatcher(WatcherConfig{
		Path:   filepath.Join(t.TempDir(), "missing", "smprofiler.json"),
		Logger: zerolog.New(os.Stdout).Level(zerolog.Disabled),
	})
	assert.Error(t, w.Run(context.Background()))
}
