package daemon_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"embysub/internal/daemon"
	"embysub/internal/daemonrun"
	"embysub/internal/logging"
	"embysub/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	f := newFixture(t)
	t.Cleanup(func() {
		f.daemon.Stop()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !f.daemon.Running() {
		t.Fatal("expected daemon to report running")
	}

	addr := f.daemon.Addr()
	if addr == "" || strings.HasSuffix(addr, ":0") {
		t.Fatalf("unexpected listener address %q", addr)
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/api_health")
	if err != nil {
		t.Fatalf("GET /api_health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	// Second start should fail
	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	status, err := f.daemon.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.LockFilePath != f.cfg.LockPath() {
		t.Fatalf("unexpected status %+v", status)
	}

	f.daemon.Stop()
	if f.daemon.Running() {
		t.Fatal("expected daemon to be stopped")
	}
	if _, err := client.Get("http://" + addr + "/api_health"); err == nil {
		t.Fatal("expected listener to be closed after Stop")
	}
}

func TestDaemonLockIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(f.daemon.Stop)

	deps, err := daemonrun.Assemble(f.cfg, f.store, logging.NewNop())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	second, err := daemon.New(f.cfg, deps, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	err = second.Start(ctx)
	if err == nil {
		second.Stop()
		t.Fatal("expected second daemon to fail acquiring the lock")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, daemon.Dependencies{}, logging.NewNop()); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
