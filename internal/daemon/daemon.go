package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"embysub/internal/api"
	"embysub/internal/auth"
	"embysub/internal/config"
	"embysub/internal/logging"
	"embysub/internal/media"
	"embysub/internal/reconcile"
	"embysub/internal/store"
	"embysub/internal/subscriptions"
)

// Dependencies are the assembled services the daemon serves.
type Dependencies struct {
	Store    *store.Store
	Auth     *auth.Service
	Requests *subscriptions.Service
	Media    *media.Service
	Job      *reconcile.Job

	// BreakerState reports the Emby circuit breaker state for status output.
	BreakerState func() string
}

// Daemon runs the HTTP API and the reconcile job under one supervisor and enforces
// single-instance execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *store.Store
	auth         *auth.Service
	requests     *subscriptions.Service
	media        *media.Service
	job          *reconcile.Job
	breakerState func() string
	handler      http.Handler

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    <-chan error
	addr    string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if deps.Store == nil || deps.Auth == nil || deps.Requests == nil || deps.Media == nil || deps.Job == nil {
		return nil, errors.New("daemon requires store, auth, requests, media and reconcile job")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        deps.Store,
		auth:         deps.Auth,
		requests:     deps.Requests,
		media:        deps.Media,
		job:          deps.Job,
		breakerState: deps.BreakerState,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}
	d.handler = d.routes()
	return d, nil
}

// Handler exposes the API router.
func (d *Daemon) Handler() http.Handler {
	return d.handler
}

// Start acquires the daemon lock, binds the API listener and launches the supervisor.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another embysub daemon instance is already running")
	}

	listener, err := net.Listen("tcp", d.cfg.Server.Bind)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("listen %s: %w", d.cfg.Server.Bind, err)
	}
	d.addr = listener.Addr().String()

	server := &http.Server{
		Addr:              d.addr,
		Handler:           d.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	shutdownTimeout := time.Duration(d.cfg.Server.ShutdownTimeout) * time.Second

	hook := (&sutureslog.Handler{Logger: d.logger}).MustHook()
	root := suture.New("embysubd", suture.Spec{
		EventHook:        hook,
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout + 5*time.Second,
	})
	root.Add(newHTTPService(server, listener, shutdownTimeout))
	root.Add(d.job)

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = root.ServeBackground(runCtx)
	d.running.Store(true)

	d.logger.Info("embysub daemon started",
		logging.String("bind", d.addr),
		logging.String("api_prefix", d.cfg.Server.APIPrefix),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Addr returns the bound listener address once started.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Stop shuts the supervisor down and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.done != nil {
		if err := <-d.done; err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("supervisor stopped with error", logging.Error(err))
		}
		d.done = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("embysub daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	counts, err := d.store.CountByStatus(ctx)
	if err != nil {
		return api.DaemonStatus{}, fmt.Errorf("count requests: %w", err)
	}
	status := api.DaemonStatus{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		DatabasePath:  d.store.Path(),
		LockFilePath:  d.lockPath,
		RequestCounts: api.RequestCounts(counts),
		Reconcile: api.ReconcileStatus{
			Running:         d.job.Running(),
			IntervalSeconds: d.cfg.Reconcile.IntervalSeconds,
			SkippedTicks:    d.job.SkippedTicks(),
		},
	}
	if last, ok := d.job.LastRun(); ok {
		status.Reconcile.LastRun = api.FromSummary(last)
	}
	if d.breakerState != nil {
		status.EmbyBreaker = d.breakerState()
	}
	return status, nil
}
