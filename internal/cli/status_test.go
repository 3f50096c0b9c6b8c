package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := execute(t, "status", "--help")
		require.NoError(t, err)
		assert.Contains(t, output, "status")
	})

	t.Run("stopped", func(t *testing.T) {
		output, err := execute(t, "--server", "http://127.0.0.1:1", "status")
		require.NoError(t, err)
		assert.Contains(t, output, "Status:")
		assert.Contains(t, output, "stopped")
	})

	t.Run("reachable service", func(t *testing.T) {
		url := newTestAPI(t)

		output, err := execute(t, "--server", url, "status", "-o", "json")
		require.NoError(t, err)

		var report serviceStatus
		require.NoError(t, json.Unmarshal([]byte(output), &report))
		assert.Equal(t, "running", report.Status)
		assert.True(t, report.Healthy)
		assert.Equal(t, url, report.URL)
		assert.Zero(t, report.Sessions)
	})
}

func TestStatusReadsPIDFile(t *testing.T) {
	dataDir := t.TempDir()
	configPath := filepath.Join(t.TempDir(), "smprofiler.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("data_dir: "+dataDir+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "smprofiler.pid"), []byte(strconv.Itoa(os.Getpid())), 0o644))

	output, err := execute(t, "--config", configPath, "--server", "http://127.0.0.1:1", "--request-timeout", "200ms", "status")
	require.NoError(t, err)
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "PID:")
	assert.Contains(t, output, strconv.Itoa(os.Getpid()))
	assert.Contains(t, output, "unreachable")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 5*time.Minute + 30*time.Second, "5m30s"},
		{"hours, minutes, seconds", 2*time.Hour + 15*time.Minute + 45*time.Second, "2h15m45s"},
		{"zero", 0, "0s"},
		{"rounding", 1500 * time.Millisecond, "2s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}
