package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/harun/smprofiler/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the smprofiler service",
	Long: `Stop the smprofiler service gracefully.
Sends SIGTERM to the service and waits for it to shut down, then SIGKILL
when the timeout expires.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for the service to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	lifecycle := daemon.NewLifecycleManager(cfg.DataDir, nopLogger())
	out := cmd.OutOrStdout()

	if !lifecycle.IsRunning() {
		fmt.Fprintln(out, "Service is not running")
		return nil
	}

	pid, err := lifecycle.GetPID()
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	if err := signalProcess(pid, syscall.SIGTERM); err != nil {
		return err
	}

	// Wait for process to stop with timeout
	deadline := time.Now().Add(time.Duration(stopTimeout) * time.Second)
	for time.Now().Before(deadline) {
		if !lifecycle.IsRunning() {
			fmt.Fprintln(out, "Service stopped successfully")
			lifecycle.Stop()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	// Force kill if timeout
	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")
	if err := signalProcess(pid, syscall.SIGKILL); err != nil {
		return err
	}

	lifecycle.Stop()
	fmt.Fprintln(out, "Service killed")
	return nil
}

func signalProcess(pid int, sig syscall.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("failed to send %s: %w", sig, err)
	}
	return nil
}
