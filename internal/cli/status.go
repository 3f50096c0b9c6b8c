package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/harun/smprofiler/internal/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service status",
	Long:  `Show whether the smprofiler service is running, and its health when reachable.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// serviceStatus is the status report printed by the status command
type serviceStatus struct {
	Status       string  `json:"status"`
	PID          int     `json:"pid,omitempty"`
	Uptime       string  `json:"uptime,omitempty"`
	URL          string  `json:"url,omitempty"`
	Healthy      bool    `json:"healthy"`
	Sessions     float64 `json:"sessions"`
	EventClients float64 `json:"event_clients"`
	Error        string  `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	report := serviceStatus{Status: "stopped"}

	lifecycle := daemon.NewLifecycleManager(cfg.DataDir, nopLogger())
	if lifecycle.IsRunning() {
		report.Status = "running"
		report.PID, _ = lifecycle.GetPID()

		// PID file modification time approximates the start time
		if info, err := os.Stat(lifecycle.PIDFile()); err == nil {
			report.Uptime = formatDuration(time.Since(info.ModTime()))
		}
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	report.URL = c.BaseURL()

	ctx, cancel := context.WithTimeout(cmd.Context(), clientTimeout)
	defer cancel()
	if health, err := c.Health(ctx); err != nil {
		if report.Status == "running" {
			report.Error = err.Error()
		}
	} else {
		report.Healthy = true
		if report.Status == "stopped" {
			// Reachable but not managed through this data directory
			report.Status = "running"
		}
		report.Sessions, _ = health["sessions"].(float64)
		report.EventClients, _ = health["event_clients"].(float64)
	}

	return printOutput(cmd.OutOrStdout(), outputFormat, report, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Status:\t%s\n", report.Status)
		if report.PID != 0 {
			fmt.Fprintf(tw, "PID:\t%d\n", report.PID)
		}
		if report.Uptime != "" {
			fmt.Fprintf(tw, "Uptime:\t%s\n", report.Uptime)
		}
		if report.Healthy {
			fmt.Fprintf(tw, "URL:\t%s\n", report.URL)
			fmt.Fprintf(tw, "Sessions:\t%.0f\n", report.Sessions)
			fmt.Fprintf(tw, "Event clients:\t%.0f\n", report.EventClients)
		}
		if report.Error != "" {
			fmt.Fprintf(tw, "Health:\tunreachable (%s)\n", report.Error)
		}
	})
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
