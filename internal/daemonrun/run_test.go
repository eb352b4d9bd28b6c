package daemonrun

import (
	"os"
	"strconv"
	"strings"
	"testing"

	"embysub/internal/logging"
	"embysub/internal/testsupport"
)

func TestAssembleBuildsServices(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	deps, err := Assemble(cfg, st, logging.NewNop())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if deps.Auth == nil || deps.Requests == nil || deps.Media == nil || deps.Job == nil {
		t.Fatalf("missing services: %+v", deps)
	}
	if deps.BreakerState == nil || deps.BreakerState() != "closed" {
		t.Fatal("expected a closed emby breaker")
	}
}

func TestAssembleRejectsMissingSecret(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	cfg.Auth.SecretKey = ""

	if _, err := Assemble(cfg, st, nil); err == nil || !strings.Contains(err.Error(), "auth tokens") {
		t.Fatalf("expected auth token error, got %v", err)
	}
}

func TestAssembleRejectsMissingCatalogKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	cfg.TMDB.APIKey = ""

	if _, err := Assemble(cfg, st, nil); err == nil || !strings.Contains(err.Error(), "tmdb client") {
		t.Fatalf("expected tmdb client error, got %v", err)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := t.TempDir() + "/embysubd.pid"
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid: %v", err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file holds %q", data)
	}
}
