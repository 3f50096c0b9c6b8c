package cli

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/harun/smprofiler/internal/config"
	"github.com/harun/smprofiler/pkg/client"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X .../internal/cli.version=..."
var version = "0.1.0"

var (
	cfgFile       string
	logLevel      string
	serverURL     string
	outputFormat  string
	clientTimeout time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "smprofiler",
	Short: "smprofiler - profiler session and dataset service",
	Long: `smprofiler manages profiler sessions and serves stored time-series
datasets, filtered to a time range, to the chart front-end.

Run "smprofiler serve" to start the service; the other commands talk to a
running service over HTTP.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.smprofiler/smprofiler.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "service URL (default derived from server.host and server.port)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "output format (table, json, yaml)")
	rootCmd.PersistentFlags().DurationVar(&clientTimeout, "request-timeout", 30*time.Second, "request timeout for client commands")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads the config file and applies an explicit --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newClient builds an API client for --server, or for the configured listen address.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	if serverURL != "" {
		return client.New(serverURL, clientTimeout), nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return client.New(baseURL(cfg.Server), clientTimeout), nil
}

func baseURL(s config.ServerConfig) string {
	host := s.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(s.Port)))
}
