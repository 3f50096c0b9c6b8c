package daemon

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/smprofiler/internal/config"
	"github.com/harun/smprofiler/internal/logger"
	"github.com/harun/smprofiler/pkg/blobstore"
	"github.com/harun/smprofiler/pkg/client"
	"github.com/harun/smprofiler/pkg/timeseries"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Storage.Backend = config.BackendFS
	cfg.Storage.FS.Root = filepath.Join(tmpDir, "blobs")
	cfg.Telemetry.Tracing = false
	return cfg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "info", Console: false})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

// startDaemon runs d on a loopback listener and returns a client for it.
func startDaemon(t *testing.T, cfg *config.Config, opts ...Option) (*Daemon, *client.Client, <-chan error) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	d, err := New(cfg, testLogger(t), append(opts, WithListener(ln))...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return d.Status().Addr != ""
	}, 5*time.Second, 10*time.Millisecond)

	return d, client.New("http://"+ln.Addr().String(), 5*time.Second), errCh
}

func TestNew(t *testing.T) {
	d, err := New(testConfig(t), testLogger(t))
	require.NoError(t, err)

	assert.NotNil(t, d.registry)
	assert.NotNil(t, d.retrieval)
	assert.NotNil(t, d.server)
	assert.NotNil(t, d.hub)
	assert.NotNil(t, d.scheduler)
	assert.NotNil(t, d.lifecycle)
	assert.Nil(t, d.watcher)
	assert.True(t, d.ownsStore)
}

func TestNew_Backends(t *testing.T) {
	t.Run("bolt", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Backend = config.BackendBolt
		cfg.Storage.Bolt.Path = filepath.Join(cfg.DataDir, "blobs.db")

		d, err := New(cfg, testLogger(t))
		require.NoError(t, err)
		_, ok := d.store.(*blobstore.BoltStore)
		assert.True(t, ok)
		d.closeStore()
	})

	t.Run("s3 with custom endpoint", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Storage.Backend = config.BackendS3
		cfg.Storage.S3.Region = "us-east-1"
		cfg.Storage.S3.Endpoint = "http://127.0.0.1:9000"
		cfg.Storage.S3.PathStyle = true

		d, err := New(cfg, testLogger(t))
		require.NoError(t, err)
		_, ok := d.store.(*blobstore.S3Store)
		assert.True(t, ok)
	})
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, testLogger(t))
	assert.Error(t, err)

	_, err = New(testConfig(t), nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Server.Port = 0
	_, err = New(cfg, testLogger(t))
	assert.ErrorContains(t, err, "server.port")

	cfg = testConfig(t)
	cfg.Storage.Backend = config.BackendBolt
	cfg.Storage.Bolt.Path = filepath.Join(cfg.DataDir, "missing", "dir", "blobs.db")
	_, err = New(cfg, testLogger(t))
	assert.ErrorContains(t, err, "bolt")
}

func TestNew_EventsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Events.Enabled = false

	d, err := New(cfg, testLogger(t))
	require.NoError(t, err)
	assert.Nil(t, d.hub)
	assert.Nil(t, d.scheduler)
}

func TestDaemonRunServesAPI(t *testing.T) {
	store := blobstore.NewFSStore(afero.NewMemMapFs(), "/blobs", 0)
	require.NoError(t, store.Put("profiles", "run.json",
		[]byte(`[{"date":1,"value":0.1,"type":"cpu"},{"date":5,"value":0.5,"type":"cpu"}]`)))

	cfg := testConfig(t)
	cfg.Logging.Audit = true
	cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.log")
	d, c, errCh := startDaemon(t, cfg, WithBlobStore(store))
	ctx := context.Background()

	_, err := os.Stat(PIDFilePath(cfg.DataDir))
	assert.NoError(t, err, "PID file written while serving")

	sess, err := c.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s3://"+sess.ID+"/", sess.Location)
	assert.Equal(t, 1, d.Status().Sessions)

	lo, hi := 2.0, 10.0
	points, err := c.FetchData(ctx, client.DataQuery{Bucket: "profiles", Object: "run.json", Min: &lo, Max: &hi})
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, timestamps(points))

	require.NoError(t, c.TerminateSession(ctx, sess.ID))
	_, err = c.DescribeSession(ctx, sess.ID)
	assert.ErrorIs(t, err, client.ErrNotFound)

	require.NoError(t, d.Stop())
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	assert.False(t, d.Status().Running)
	_, err = os.Stat(PIDFilePath(cfg.DataDir))
	assert.True(t, os.IsNotExist(err), "PID file removed after stop")

	audit, err := os.ReadFile(cfg.Logging.AuditFile)
	require.NoError(t, err)
	assert.Contains(t, string(audit), `"action":"session.created"`)
	assert.Contains(t, string(audit), `"action":"session.terminated"`)
	assert.Contains(t, string(audit), sess.ID)
}

func TestDaemonStopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	d, err := New(testConfig(t), testLogger(t), WithListener(ln))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.Status().Running }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemonStatus(t *testing.T) {
	cfg := testConfig(t)

	d, err := New(cfg, testLogger(t))
	require.NoError(t, err)

	status := d.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)
	assert.Empty(t, status.Addr)
	assert.Error(t, d.Stop(), "stop before run")

	d, _, _ = startDaemon(t, testConfig(t))
	time.Sleep(20 * time.Millisecond)

	status = d.Status()
	assert.True(t, status.Running)
	assert.Greater(t, status.Uptime, time.Duration(0))
	assert.NotEmpty(t, status.Addr)
}

func TestDaemonRejectsSecondRun(t *testing.T) {
	d, _, _ := startDaemon(t, testConfig(t))

	err := d.Run(context.Background())
	assert.ErrorContains(t, err, "already running")
}

func TestDaemonHotReloadsLogLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := testConfig(t)
	path := filepath.Join(cfg.DataDir, "smprofiler.yaml")
	require.NoError(t, config.NewLoader(path).Save(cfg))

	d, _, _ := startDaemon(t, cfg, WithConfigPath(path))
	require.NotNil(t, d.watcher)

	next := *cfg
	next.Logging.Level = "debug"
	require.NoError(t, config.NewLoader(path).Save(&next))

	// Writes closer together than the debounce restart it. A save made before the
	// watcher attached is lost, hence the occasional resave.
	lastSave := time.Now()
	require.Eventually(t, func() bool {
		if zerolog.GlobalLevel() == zerolog.DebugLevel {
			return true
		}
		if time.Since(lastSave) > time.Second {
			_ = config.NewLoader(path).Save(&next)
			lastSave = time.Now()
		}
		return false
	}, 10*time.Second, 100*time.Millisecond)

	assert.Equal(t, "debug", d.GetConfig().Logging.Level)
}

func TestApplyReloadKeepsRestartOnlySettings(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := testConfig(t)
	d, err := New(cfg, testLogger(t))
	require.NoError(t, err)

	next := *cfg
	next.Server.Port = 9999
	next.Logging.Level = "warn"
	d.applyReload(&next)

	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	assert.Equal(t, "warn", d.GetConfig().Logging.Level)
	assert.Equal(t, cfg.Server.Port, d.GetConfig().Server.Port)
}

func timestamps(points []timeseries.DataPoint) []float64 {
	out := make([]float64, 0, len(points))
	for _, p := range points {
		out = append(out, p.Timestamp)
	}
	return out
}
