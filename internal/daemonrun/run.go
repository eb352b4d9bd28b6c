package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"embysub/internal/auth"
	"embysub/internal/catalog/tmdb"
	"embysub/internal/config"
	"embysub/internal/daemon"
	"embysub/internal/logging"
	"embysub/internal/media"
	"embysub/internal/notifications"
	"embysub/internal/reconcile"
	"embysub/internal/resolver"
	"embysub/internal/services/emby"
	"embysub/internal/store"
	"embysub/internal/subscriptions"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the embysubd runtime loop and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open request store", logging.Error(err))
		return err
	}

	deps, err := Assemble(cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("assemble services: %w", err)
	}

	d, err := daemon.New(cfg, deps, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check server.bind and that no other embysubd uses the data directory"),
			logging.String(logging.FieldImpact, "API and reconcile job are not running"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("embysub daemon shutting down")
	return nil
}

// Assemble builds the service graph the daemon serves from configuration.
func Assemble(cfg *config.Config, st *store.Store, logger *slog.Logger) (daemon.Dependencies, error) {
	if cfg == nil || st == nil {
		return daemon.Dependencies{}, fmt.Errorf("assemble requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	catalogOpts := []tmdb.Option{
		tmdb.WithTimeout(time.Duration(cfg.TMDB.TimeoutSeconds) * time.Second),
		tmdb.WithRateLimit(cfg.TMDB.RequestsPerSecond),
		tmdb.WithImageBaseURL(cfg.TMDB.ImageBaseURL),
	}
	if proxy := strings.TrimSpace(cfg.TMDB.ProxyURL); proxy != "" {
		catalogOpts = append(catalogOpts, tmdb.WithProxy(proxy))
	}
	catalog, err := tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, cfg.TMDB.Language, catalogOpts...)
	if err != nil {
		return daemon.Dependencies{}, fmt.Errorf("tmdb client: %w", err)
	}

	embyClient, err := emby.NewConfigured(cfg)
	if err != nil {
		return daemon.Dependencies{}, fmt.Errorf("emby client: %w", err)
	}
	inventory := emby.NewBreakerClient(embyClient, emby.BreakerSettings{}, logger)

	tokens, err := auth.NewTokens(cfg.Auth.SecretKey, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute, cfg.Auth.Issuer)
	if err != nil {
		return daemon.Dependencies{}, fmt.Errorf("auth tokens: %w", err)
	}

	notifier := notifications.NewService(cfg)
	res := resolver.New(inventory, st, logger, resolver.WithConcurrency(cfg.Resolver.Concurrency))
	job := reconcile.New(inventory, st, logger,
		reconcile.WithInterval(time.Duration(cfg.Reconcile.IntervalSeconds)*time.Second),
		reconcile.WithRunOnStart(cfg.Reconcile.RunOnStart),
		reconcile.WithNotifier(notifier),
	)

	return daemon.Dependencies{
		Store:        st,
		Auth:         auth.NewService(inventory, st, tokens, logger),
		Requests:     subscriptions.NewService(st, catalog, notifier, logger),
		Media:        media.NewService(catalog, inventory, res, logger),
		Job:          job,
		BreakerState: func() string { return inventory.State().String() },
	}, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("bind", cfg.Server.Bind),
		logging.String("api_prefix", cfg.Server.APIPrefix),
		logging.String("emby_url", cfg.Emby.URL),
		logging.Bool("emby_key_present", cfg.Emby.APIKey != ""),
		logging.Bool("emby_user_present", cfg.Emby.UserID != ""),
		logging.Bool("tmdb_key_present", cfg.TMDB.APIKey != ""),
		logging.Bool("tmdb_proxy", cfg.TMDB.ProxyURL != ""),
		logging.Bool("ntfy_enabled", cfg.Notifications.NtfyTopic != ""),
		logging.Int("reconcile_interval_seconds", cfg.Reconcile.IntervalSeconds),
		logging.String("database", cfg.Database.Path),
	)
}
