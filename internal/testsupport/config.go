package testsupport

import (
	"path/filepath"
	"testing"

	"embysub/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Database.Path = filepath.Join(base, "data", "embysub.db")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Auth.SecretKey = "test-secret"
	cfgVal.Emby.APIKey = "emby-test"
	cfgVal.TMDB.APIKey = "tmdb-test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithEmbyURL points the Emby client at a test server.
func WithEmbyURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Emby.URL = url
	}
}

// WithTMDBURL points the TMDB client at a test server.
func WithTMDBURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.TMDB.BaseURL = url
		b.cfg.TMDB.ImageBaseURL = url + "/t/p"
	}
}

// WithNtfyTopic enables operator pushes to the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
