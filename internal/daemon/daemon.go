// Package daemon is the composition root of the smprofiler service.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/harun/smprofiler/internal/config"
	"github.com/harun/smprofiler/internal/logger"
	"github.com/harun/smprofiler/internal/observability"
	"github.com/harun/smprofiler/internal/tracing"
	"github.com/harun/smprofiler/pkg/api"
	"github.com/harun/smprofiler/pkg/blobstore"
	"github.com/harun/smprofiler/pkg/profiler"
	"github.com/harun/smprofiler/pkg/retrieval"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Daemon represents the smprofiler service
type Daemon struct {
	config     *config.Config
	configPath string
	version    string
	logger     *logger.Logger
	listener   net.Listener

	// Core modules
	registry  *profiler.Registry
	store     blobstore.Client
	ownsStore bool
	retrieval *retrieval.Service

	// Services
	audit     *observability.AuditLogger
	hub       *api.EventHub
	server    *api.Server
	scheduler *cron.Cron
	watcher   *config.Watcher
	lifecycle *LifecycleManager

	cancel    context.CancelFunc
	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status is a point-in-time view of the daemon
type Status struct {
	Running      bool
	Uptime       time.Duration
	StartTime    time.Time
	Addr         string
	Sessions     int
	EventClients int
}

// Option customizes a Daemon
type Option func(*Daemon)

// WithConfigPath enables hot reload of the given config file
func WithConfigPath(path string) Option {
	return func(d *Daemon) { d.configPath = path }
}

// WithVersion sets the version reported to tracing and logs
func WithVersion(version string) Option {
	return func(d *Daemon) { d.version = version }
}

// WithListener serves on ln instead of listening on the configured address
func WithListener(ln net.Listener) Option {
	return func(d *Daemon) { d.listener = ln }
}

// WithBlobStore replaces the configured storage backend. The daemon does not close it.
func WithBlobStore(store blobstore.Client) Option {
	return func(d *Daemon) { d.store = store }
}

// New validates cfg and builds every component. Nothing listens until Run.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	observability.EnsureRegistered()

	d := &Daemon{
		config:  cfg,
		logger:  log,
		version: "dev",
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.initializeCoreModules(); err != nil {
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}
	if err := d.initializeServices(); err != nil {
		d.closeStore()
		d.audit.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return d, nil
}

func (d *Daemon) initializeCoreModules() error {
	log := d.logger.GetZerolog()

	if d.store == nil {
		store, err := openStore(context.Background(), d.config.Storage, d.config.Data.MaxObjectBytes)
		if err != nil {
			return err
		}
		d.store = store
		d.ownsStore = true
	}
	log.Info().Str("backend", d.config.Storage.Backend).Msg("Blob store initialized")

	d.retrieval = retrieval.NewService(d.store)

	registryOpts := []profiler.Option{profiler.WithScheme(d.config.Sessions.Scheme)}
	if d.config.Events.Enabled {
		d.hub = api.NewEventHub(d.sessionCount, d.config.Server.AllowOrigin, log)
		registryOpts = append(registryOpts, profiler.WithObserver(d.hub.Observe))
	}
	d.registry = profiler.NewRegistry(registryOpts...)
	return nil
}

func (d *Daemon) initializeServices() error {
	cfg := d.config

	if cfg.Logging.Audit && cfg.Logging.AuditFile != "" {
		audit, err := observability.OpenAuditLog(cfg.Logging.AuditFile)
		if err != nil {
			return err
		}
		d.audit = audit
	}

	server, err := api.NewServer(api.ServerOptions{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		FetchTimeout:    cfg.Data.FetchTimeout,
		AllowOrigin:     cfg.Server.AllowOrigin,
		Metrics:         cfg.Telemetry.Metrics,
		Audit:           d.audit,
	}, d.registry, d.retrieval, d.hub, d.logger.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	d.server = server

	if d.hub != nil {
		d.scheduler = cron.New()
		if _, err := d.scheduler.AddFunc(cfg.Events.Heartbeat, d.hub.Heartbeat); err != nil {
			return fmt.Errorf("invalid heartbeat schedule %q: %w", cfg.Events.Heartbeat, err)
		}
	}

	if d.configPath != "" {
		d.watcher = config.NewWatcher(config.WatcherConfig{
			Path:     d.configPath,
			OnReload: d.applyReload,
			Logger:   d.logger.Component("config"),
		})
	}

	if cfg.DataDir != "" {
		d.lifecycle = NewLifecycleManager(cfg.DataDir, d.logger.Component("lifecycle"))
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, maxBytes int64) (blobstore.Client, error) {
	switch cfg.Backend {
	case config.BackendS3:
		store, err := blobstore.NewS3Store(ctx, blobstore.S3Options{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		}, maxBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 store: %w", err)
		}
		return store, nil
	case config.BackendFS:
		return blobstore.NewFSStore(afero.NewOsFs(), cfg.FS.Root, maxBytes), nil
	case config.BackendBolt:
		store, err := blobstore.OpenBoltStore(cfg.Bolt.Path, maxBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}

// Run serves until ctx is cancelled or Stop is called, then shuts down gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.cancel = cancel
	cfg := d.config
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.cancel = nil
		d.mu.Unlock()
	}()

	log := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	log.Info().Str("version", d.version).Msg("Starting smprofiler daemon")

	if d.lifecycle != nil {
		if err := d.lifecycle.Start(); err != nil {
			return fmt.Errorf("failed to start lifecycle manager: %w", err)
		}
		defer func() {
			if err := d.lifecycle.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop lifecycle manager")
			}
		}()
	}

	if cfg.Telemetry.Tracing {
		if err := tracing.InitOpenTelemetry(cfg.Telemetry.ServiceName, d.version, cfg.Telemetry.SampleRatio); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			defer func() {
				if err := tracing.ShutdownOpenTelemetry(context.Background()); err != nil {
					log.Warn().Err(err).Msg("Failed to flush traces")
				}
			}()
		}
	}

	ln := d.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.Server.Addr())
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr(), err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.server.Serve(ln)
	})

	if d.scheduler != nil {
		d.scheduler.Start()
		log.Info().Str("schedule", cfg.Events.Heartbeat).Msg("Heartbeat scheduler started")
	}

	if d.watcher != nil {
		g.Go(func() error {
			if err := d.watcher.Run(gctx); err != nil {
				log.Warn().Err(err).Msg("Config watcher stopped, hot reload disabled")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return d.shutdown(log, cfg.Server.ShutdownTimeout)
	})

	err := g.Wait()
	d.closeStore()
	if err := d.audit.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close audit log")
	}
	log.Info().Dur("uptime", time.Since(d.startTime)).Msg("smprofiler daemon stopped")
	return err
}

func (d *Daemon) shutdown(log zerolog.Logger, timeout time.Duration) error {
	log.Info().Msg("Stopping smprofiler daemon")

	if d.scheduler != nil {
		<-d.scheduler.Stop().Done()
		log.Info().Msg("Heartbeat scheduler stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
	defer cancel()
	return d.server.Stop(ctx)
}

// Stop asks a running daemon to shut down. Run returns once it has.
func (d *Daemon) Stop() error {
	d.mu.RLock()
	cancel := d.cancel
	d.mu.RUnlock()

	if cancel == nil {
		return fmt.Errorf("daemon is not running")
	}
	cancel()
	return nil
}

func (d *Daemon) closeStore() {
	if !d.ownsStore {
		return
	}
	if closer, ok := d.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to close blob store")
		}
	}
}

// applyReload takes the settings that can change without a restart.
func (d *Daemon) applyReload(cfg *config.Config) {
	level := logger.SetLevel(cfg.Logging.Level)

	d.mu.Lock()
	previous := d.config
	updated := *previous
	updated.Logging.Level = level.String()
	d.config = &updated
	d.mu.Unlock()

	log := d.logger.Component("config")
	log.Info().Str("level", level.String()).Msg("Configuration reloaded")

	if cfg.Server != previous.Server || cfg.Storage != previous.Storage || cfg.Sessions != previous.Sessions {
		log.Warn().Msg("Server, storage and session settings take effect after a restart")
	}
}

func (d *Daemon) sessionCount() int {
	if d.registry == nil {
		return 0
	}
	return d.registry.Count()
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:  d.running,
		Sessions: d.registry.Count(),
	}
	if d.hub != nil {
		status.EventClients = d.hub.Count()
	}
	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
		if addr := d.server.Addr(); addr != nil {
			status.Addr = addr.String()
		}
	}
	return status
}

// GetConfig returns the active configuration
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// GetRegistry returns the session registry
func (d *Daemon) GetRegistry() *profiler.Registry {
	return d.registry
}

// GetServer returns the API server
func (d *Daemon) GetServer() *api.Server {
	return d.server
}
