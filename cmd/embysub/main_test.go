package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"embysub/internal/config"
	"embysub/internal/store"
	"embysub/internal/testsupport"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q

[database]
path = %q

[emby]
url = "http://127.0.0.1:1"
api_key = "emby-test"

[tmdb]
api_key = "tmdb-test"

[auth]
secret_key = "test-secret"

[notifications]
ntfy_topic = ""
`, filepath.Join(base, "data"), filepath.Join(base, "logs"), filepath.Join(base, "data", "embysub.db"))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedStore(t *testing.T, configPath string, seed func(*store.Store)) {
	t.Helper()
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	seed(st)
}

func TestConfigInitAndValidate(t *testing.T) {
	target := filepath.Join(t.TempDir(), "embysub", "config.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected init output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config not written: %v", err)
	}
	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}

	configPath := writeTestConfig(t)
	out, err = runCLI(t, "--config", configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, "Notifications: no") {
		t.Fatalf("unexpected validate output: %q", out)
	}
}

func TestRequestsListAndApprove(t *testing.T) {
	configPath := writeTestConfig(t)

	var pendingID int64
	seedStore(t, configPath, func(st *store.Store) {
		testsupport.MustUser(t, st, "alice-id", "alice", store.RoleUser)
		pendingID = testsupport.MustRequest(t, st, "alice-id", "550", nil, store.StatusPending).ID
		testsupport.MustRequest(t, st, "alice-id", "1399", testsupport.IntPtr(2), store.StatusCompleted)
	})

	out, err := runCLI(t, "--config", configPath, "requests", "list")
	if err != nil {
		t.Fatalf("requests list: %v", err)
	}
	for _, want := range []string{"Title 550", "Title 1399", "alice", "Pending", "Completed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("list output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, "--config", configPath, "req", "list", "--status", "completed")
	if err != nil {
		t.Fatalf("requests list --status: %v", err)
	}
	if strings.Contains(out, "Title 550") || !strings.Contains(out, "Title 1399") {
		t.Fatalf("status filter not applied:\n%s", out)
	}

	if _, err := runCLI(t, "--config", configPath, "requests", "list", "--status", "bogus"); err == nil {
		t.Fatal("expected invalid status to fail")
	}

	out, err = runCLI(t, "--config", configPath, "requests", "approve", fmt.Sprint(pendingID))
	if err != nil {
		t.Fatalf("requests approve: %v", err)
	}
	if !strings.Contains(out, "is now approved") {
		t.Fatalf("unexpected approve output: %q", out)
	}

	if _, err := runCLI(t, "--config", configPath, "requests", "reject", "9999"); err == nil {
		t.Fatal("expected reject of unknown request to fail")
	}
	if _, err := runCLI(t, "--config", configPath, "requests", "reject", "abc"); err == nil {
		t.Fatal("expected non-numeric id to fail")
	}
}

func TestUsersList(t *testing.T) {
	configPath := writeTestConfig(t)

	out, err := runCLI(t, "--config", configPath, "users", "list")
	if err != nil {
		t.Fatalf("users list: %v", err)
	}
	if !strings.Contains(out, "No users have logged in yet") {
		t.Fatalf("unexpected empty output: %q", out)
	}

	seedStore(t, configPath, func(st *store.Store) {
		testsupport.MustUser(t, st, "admin-id", "admin", store.RoleAdmin)
	})
	out, err = runCLI(t, "--config", configPath, "users", "list")
	if err != nil {
		t.Fatalf("users list: %v", err)
	}
	if !strings.Contains(out, "admin-id") || strings.Contains(out, "No users") {
		t.Fatalf("unexpected users output:\n%s", out)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	configPath := writeTestConfig(t)
	seedStore(t, configPath, func(st *store.Store) {
		testsupport.MustRequest(t, st, "alice-id", "550", nil, store.StatusPending)
	})

	out, err := runCLI(t, "--config", configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"System Status", "Daemon", "Requests", "Pending"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	configPath := writeTestConfig(t)
	out, err := runCLI(t, "--config", configPath, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !strings.Contains(out, "Daemon is not running") {
		t.Fatalf("unexpected stop output: %q", out)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	configPath := writeTestConfig(t)
	out, err := runCLI(t, "--config", configPath, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "ntfy topic not configured") {
		t.Fatalf("unexpected output: %q", out)
	}
}
