package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"embysub/internal/api"
	"embysub/internal/config"
	"embysub/internal/store"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

// Launch starts a detached embysubd process in its own session.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	var args []string
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// ReadPID returns the pid recorded in pidPath, or 0 when the file is absent.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pidStr := strings.TrimSpace(string(data))
	if pidStr == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon pid file %q holds %q", pidPath, pidStr)
	}
	return pid, nil
}

// processAlive reports whether pid names a live process we could signal.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// LockHeld reports whether another process holds the daemon lock.
func LockHeld(lockPath string) (bool, error) {
	if _, err := os.Stat(lockPath); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock: %w", err)
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

// ProcessInfo returns whether the daemon is running and its pid when known.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	pid, err := ReadPID(cfg.PIDPath())
	if err != nil {
		return false, 0, err
	}
	if processAlive(pid) {
		return true, pid, nil
	}
	held, err := LockHeld(cfg.LockPath())
	if err != nil {
		return false, 0, err
	}
	return held, 0, nil
}

// WaitForShutdown waits for the daemon process to exit.
func WaitForShutdown(pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop: pid %d still alive after %s", pid, timeout)
}

// ForceKillProcess sends SIGKILL to daemon process and cleans pid/lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := ReadPID(pidPath)
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		pid = fallbackPID
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

// ErrDaemonNotRunning indicates no live daemon process was found.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// StopAndTerminate sends SIGTERM and force-kills the process if still alive after gracePeriod.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	if cfg == nil {
		return StopResult{}, errors.New("configuration not available")
	}
	pidPath := cfg.PIDPath()
	pid, err := ReadPID(pidPath)
	if err != nil {
		return StopResult{}, err
	}
	if !processAlive(pid) {
		_ = os.Remove(pidPath)
		return StopResult{}, ErrDaemonNotRunning
	}

	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return result, nil
		}
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	result.StopAcknowledged = true

	if err := WaitForShutdown(pid, gracePeriod); err == nil {
		return result, nil
	}

	killedPID, killErr := ForceKillProcess(pidPath, cfg.LockPath(), pid)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// StatusLine is one labelled row of status output.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// Snapshot is the CLI view of daemon state, read without contacting the daemon.
type Snapshot struct {
	Running       bool
	PID           int
	DatabasePath  string
	LockPath      string
	RequestCounts map[string]int
	Checks        []StatusLine
}

// BuildStatusSnapshot collects daemon process state and reads request counts from
// the store directly.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return nil, err
	}
	snapshot := &Snapshot{
		Running:       running,
		PID:           pid,
		DatabasePath:  cfg.Database.Path,
		LockPath:      cfg.LockPath(),
		RequestCounts: api.RequestCounts(nil),
	}

	if _, statErr := os.Stat(cfg.Database.Path); statErr == nil {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		st, openErr := store.Open(cfg)
		if openErr == nil {
			counts, countErr := st.CountByStatus(queryCtx)
			_ = st.Close()
			if countErr == nil {
				snapshot.RequestCounts = api.RequestCounts(counts)
			}
		}
	}

	snapshot.Checks = BuildSystemChecks(cfg, running)
	return snapshot, nil
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(cfg *config.Config, daemonRunning bool) []StatusLine {
	lines := make([]StatusLine, 0, 5)
	if daemonRunning {
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "ok", Detail: "Running"})
	} else {
		lines = append(lines, StatusLine{Label: "Daemon", Severity: "warn", Detail: "Not running (run `embysubd`)"})
	}

	switch {
	case strings.TrimSpace(cfg.Emby.APIKey) == "":
		lines = append(lines, StatusLine{Label: "Emby", Severity: "error", Detail: "API key missing"})
	case strings.TrimSpace(cfg.Emby.UserID) == "":
		lines = append(lines, StatusLine{Label: "Emby", Severity: "warn", Detail: cfg.Emby.URL + " (no user id, latest items disabled)"})
	default:
		lines = append(lines, StatusLine{Label: "Emby", Severity: "ok", Detail: cfg.Emby.URL})
	}

	if strings.TrimSpace(cfg.TMDB.APIKey) == "" {
		lines = append(lines, StatusLine{Label: "TMDB", Severity: "error", Detail: "API key missing"})
	} else {
		detail := cfg.TMDB.BaseURL
		if cfg.TMDB.ProxyURL != "" {
			detail += " via proxy"
		}
		lines = append(lines, StatusLine{Label: "TMDB", Severity: "ok", Detail: detail})
	}

	if strings.TrimSpace(cfg.Auth.SecretKey) == "" {
		lines = append(lines, StatusLine{Label: "Auth", Severity: "error", Detail: "Secret key missing"})
	} else {
		lines = append(lines, StatusLine{Label: "Auth", Severity: "ok", Detail: "Configured"})
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: "info", Detail: "Not configured"})
	}
	return lines
}
