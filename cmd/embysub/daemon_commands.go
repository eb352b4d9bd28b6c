package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"embysub/internal/api"
	"embysub/internal/daemonctl"
)

const daemonBinary = "embysubd"

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var logLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start embysubd in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if running, pid, _ := daemonctl.ProcessInfo(cfg); running {
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", pid)
				return nil
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			opts := daemonctl.LaunchOptions{ConfigPath: ctx.configPath, LogLevel: logLevel}
			if err := daemonctl.Launch(exe, opts); err != nil {
				return err
			}
			deadline := time.Now().Add(10 * time.Second)
			for time.Now().Before(deadline) {
				if running, pid, _ := daemonctl.ProcessInfo(cfg); running {
					fmt.Fprintf(stdout, "Daemon started (pid %d)\n", pid)
					return nil
				}
				time.Sleep(200 * time.Millisecond)
			}
			return fmt.Errorf("daemon did not start within 10s; check %s", cfg.LogFilePath())
		},
	}
	startCmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop embysubd (SIGTERM, then SIGKILL after a grace period)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.configValue(), 10*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon ignored SIGTERM; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and request status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue())
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range snapshot.Checks {
				fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
			}
			if snapshot.PID > 0 {
				fmt.Fprintln(stdout, renderStatusLine("PID", statusInfo, fmt.Sprint(snapshot.PID), colorize))
			}
			fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, snapshot.DatabasePath, colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Requests", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := make([][]string, 0, len(snapshot.RequestCounts))
			for _, status := range api.SortedStatuses(snapshot.RequestCounts) {
				rows = append(rows, []string{formatStatusLabel(status), fmt.Sprint(snapshot.RequestCounts[status])})
			}
			fmt.Fprint(stdout, renderTable([]string{"Status", "Count"}, rows, 1))
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

// daemonExecutable prefers an embysubd next to the running CLI and falls back to PATH.
func daemonExecutable() (string, error) {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), daemonBinary)
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(daemonBinary)
	if err != nil {
		return "", fmt.Errorf("locate %s: %w", daemonBinary, err)
	}
	return path, nil
}
