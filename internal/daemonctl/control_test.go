package daemonctl

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"embysub/internal/testsupport"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/embysubd.pid"

	pid, err := ReadPID(path)
	if err != nil || pid != 0 {
		t.Fatalf("missing file: got pid=%d err=%v", pid, err)
	}

	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	pid, err = ReadPID(path)
	if err != nil || pid != 4242 {
		t.Fatalf("got pid=%d err=%v, want 4242", pid, err)
	}

	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := ReadPID(path); err == nil {
		t.Fatal("expected error for malformed pid file")
	}
}

func TestForceKillRefusesCurrentProcess(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/embysubd.pid"
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := ForceKillProcess(path, "", 0); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
}

func TestLockHeld(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	held, err := LockHeld(cfg.LockPath())
	if err != nil || held {
		t.Fatalf("no lock file: held=%v err=%v", held, err)
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	t.Cleanup(func() { _ = lock.Unlock() })

	running, _, err := ProcessInfo(cfg)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if !running {
		t.Fatal("expected a held lock to report the daemon as running")
	}
}

func TestStopAndTerminateNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := StopAndTerminate(cfg, time.Second); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStopAndTerminateSignalsProcess(t *testing.T) {
	sleepPath, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep binary not available")
	}
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	cmd := exec.Command(sleepPath, "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	waited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(waited)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-waited
	})
	if err := os.WriteFile(cfg.PIDPath(), []byte(strconv.Itoa(cmd.Process.Pid)), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}

	result, err := StopAndTerminate(cfg, 5*time.Second)
	if err != nil {
		t.Fatalf("StopAndTerminate: %v", err)
	}
	if !result.StopAcknowledged || result.ForcedKill {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.PID != cmd.Process.Pid {
		t.Fatalf("pid = %d, want %d", result.PID, cmd.Process.Pid)
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.MustUser(t, st, "u1", "alice", "user")
	testsupport.MustRequest(t, st, "u1", "100", nil, "")
	testsupport.MustRequest(t, st, "u1", "200", nil, "approved")

	snapshot, err := BuildStatusSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.Running {
		t.Fatal("expected daemon to be reported as stopped")
	}
	if snapshot.RequestCounts["pending"] != 1 || snapshot.RequestCounts["approved"] != 1 || snapshot.RequestCounts["completed"] != 0 {
		t.Fatalf("unexpected counts %#v", snapshot.RequestCounts)
	}
	if len(snapshot.Checks) == 0 || snapshot.Checks[0].Label != "Daemon" || snapshot.Checks[0].Severity != "warn" {
		t.Fatalf("unexpected checks %#v", snapshot.Checks)
	}
}

func TestBuildSystemChecksFlagsMissingKeys(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.TMDB.APIKey = ""
	cfg.Emby.UserID = ""

	lines := BuildSystemChecks(cfg, true)
	severities := map[string]string{}
	for _, line := range lines {
		severities[line.Label] = line.Severity
	}
	if severities["Daemon"] != "ok" || severities["TMDB"] != "error" || severities["Emby"] != "warn" || severities["Auth"] != "ok" {
		t.Fatalf("unexpected severities %#v", severities)
	}
}
