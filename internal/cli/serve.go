package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/smprofiler/internal/config"
	"github.com/harun/smprofiler/internal/daemon"
	"github.com/harun/smprofiler/internal/logger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the smprofiler service in the foreground",
	Long: `Run the smprofiler service in the foreground.
The service writes a PID file to the data directory, serves the profiler API
and stops gracefully on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lifecycle := daemon.NewLifecycleManager(cfg.DataDir, nopLogger())
	if lifecycle.IsRunning() {
		pid, _ := lifecycle.GetPID()
		return fmt.Errorf("daemon is already running (PID %d, PID file: %s)", pid, lifecycle.PIDFile())
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Console:    true,
		Pretty:     cfg.Logging.Pretty,
		Redaction:  cfg.Logging.Redaction,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	opts := []daemon.Option{daemon.WithVersion(version)}
	if path := config.NewLoader(cfgFile).GetConfigPath(); fileExists(path) {
		opts = append(opts, daemon.WithConfigPath(path))
	}

	d, err := daemon.New(cfg, log, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
