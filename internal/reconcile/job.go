package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"embysub/internal/logging"
	"embysub/internal/metrics"
	"embysub/internal/notifications"
	"embysub/internal/services"
	"embysub/internal/services/emby"
	"embysub/internal/store"
)

const (
	catalogProvider = "Tmdb"

	// NotificationTitle is the inbox title written when a request becomes available.
	NotificationTitle = "资源已入库"

	defaultInterval = 2 * time.Minute
)

// ErrAlreadyRunning is returned by RunOnce while another pass is in progress.
var ErrAlreadyRunning = errors.New("reconcile pass already running")

// NotificationMessage is the inbox message for a completed request.
func NotificationMessage(title string) string {
	return fmt.Sprintf("您申请的 '%s' 已经入库 Emby，现在可以观看了。", title)
}

// Inventory is the Emby lookup the job needs.
type Inventory interface {
	FindByProviderID(ctx context.Context, provider, id string) ([]emby.Item, error)
}

// Store is the request store surface the job needs.
type Store interface {
	ListByStatus(ctx context.Context, status store.Status) ([]*store.Request, error)
	CompleteWithNotification(ctx context.Context, id int64, title, message string) (bool, error)
}

// Summary describes one reconciliation pass.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Checked    int       `json:"checked"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// Duration reports how long the pass took.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Job moves approved requests to completed once Emby holds the title.
type Job struct {
	inventory  Inventory
	store      Store
	notifier   notifications.Service
	logger     *slog.Logger
	interval   time.Duration
	runOnStart bool
	now        func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup

	mu      sync.Mutex
	last    *Summary
	skipped int
}

// Option configures a Job.
type Option func(*Job)

// WithInterval sets the tick interval.
func WithInterval(interval time.Duration) Option {
	return func(j *Job) {
		if interval > 0 {
			j.interval = interval
		}
	}
}

// WithRunOnStart controls whether Serve runs a pass before the first tick.
func WithRunOnStart(enabled bool) Option {
	return func(j *Job) {
		j.runOnStart = enabled
	}
}

// WithNotifier sets the operator push service.
func WithNotifier(notifier notifications.Service) Option {
	return func(j *Job) {
		if notifier != nil {
			j.notifier = notifier
		}
	}
}

// New constructs a Job.
func New(inventory Inventory, st Store, logger *slog.Logger, opts ...Option) *Job {
	j := &Job{
		inventory:  inventory,
		store:      st,
		notifier:   notifications.NewService(nil),
		logger:     logging.NewComponentLogger(logger, "reconcile"),
		interval:   defaultInterval,
		runOnStart: true,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// String names the job for the supervisor.
func (j *Job) String() string {
	return "reconcile"
}

// Serve runs passes on every tick until ctx is cancelled. A tick that fires while a
// pass is still running is dropped, not queued.
func (j *Job) Serve(ctx context.Context) error {
	j.logger.Info("reconcile job started",
		logging.Duration("interval", j.interval),
		logging.Bool("run_on_start", j.runOnStart),
	)
	if j.runOnStart {
		j.trigger(ctx)
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.wg.Wait()
			j.logger.Info("reconcile job stopped")
			return ctx.Err()
		case <-ticker.C:
			j.trigger(ctx)
		}
	}
}

// trigger starts a pass in the background unless one is already running.
func (j *Job) trigger(ctx context.Context) {
	if !j.running.CompareAndSwap(false, true) {
		j.recordSkip()
		return
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer j.running.Store(false)
		_, _ = j.run(ctx)
	}()
}

// RunOnce performs a single pass synchronously. It returns ErrAlreadyRunning when a
// pass is in progress.
func (j *Job) RunOnce(ctx context.Context) (Summary, error) {
	if !j.running.CompareAndSwap(false, true) {
		j.recordSkip()
		return Summary{}, ErrAlreadyRunning
	}
	defer j.running.Store(false)
	return j.run(ctx)
}

// Running reports whether a pass is in progress.
func (j *Job) Running() bool {
	return j.running.Load()
}

// LastRun returns the most recent finished pass, if any.
func (j *Job) LastRun() (Summary, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.last == nil {
		return Summary{}, false
	}
	return *j.last, true
}

// SkippedTicks reports how many ticks were dropped because a pass was running.
func (j *Job) SkippedTicks() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.skipped
}

func (j *Job) recordSkip() {
	j.mu.Lock()
	j.skipped++
	j.mu.Unlock()
	metrics.RecordReconcileSkipped()
	j.logger.Debug("reconcile tick skipped; previous pass still running")
}

func (j *Job) run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: uuid.NewString(), StartedAt: j.now()}
	ctx = services.WithRunID(ctx, summary.RunID)
	logger := logging.WithContext(ctx, j.logger)

	approved, err := j.store.ListByStatus(ctx, store.StatusApproved)
	if err != nil {
		summary.FinishedAt = j.now()
		summary.Error = err.Error()
		j.finish(summary, 0, err)
		logging.ErrorWithContext(logger, "reconcile pass failed to load approved requests", "reconcile_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database.path and disk space"),
		)
		return summary, fmt.Errorf("list approved requests: %w", err)
	}
	if len(approved) == 0 {
		summary.FinishedAt = j.now()
		j.finish(summary, 0, nil)
		return summary, nil
	}

	logger.Debug("reconcile pass started", logging.Int("approved", len(approved)))
	for _, req := range approved {
		if ctx.Err() != nil {
			break
		}
		summary.Checked++
		completed, err := j.reconcile(ctx, logger, req)
		switch {
		case err != nil:
			summary.Failed++
		case completed:
			summary.Completed++
		}
	}
	summary.FinishedAt = j.now()
	j.finish(summary, len(approved)-summary.Completed, nil)

	logger.Info("reconcile pass finished",
		logging.Int("checked", summary.Checked),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Duration("duration", summary.Duration()),
	)
	return summary, nil
}

// reconcile checks one approved request. Failures are logged and never abort the pass.
func (j *Job) reconcile(ctx context.Context, logger *slog.Logger, req *store.Request) (bool, error) {
	reqLogger := logger.With(
		logging.Int64(logging.FieldRequestID, req.ID),
		logging.String(logging.FieldCatalogID, req.TMDBID),
	)

	items, err := j.inventory.FindByProviderID(ctx, catalogProvider, req.TMDBID)
	if err != nil {
		logging.WarnWithContext(reqLogger, "emby lookup failed; will retry next tick", "reconcile_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check emby connectivity"),
			logging.String(logging.FieldImpact, "request stays approved until the next pass"),
		)
		return false, err
	}
	if len(items) == 0 {
		return false, nil
	}

	changed, err := j.store.CompleteWithNotification(ctx, req.ID, NotificationTitle, NotificationMessage(req.Title))
	if err != nil {
		logging.ErrorWithContext(reqLogger, "failed to mark request completed", "reconcile_complete_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database health"),
		)
		return false, err
	}
	if !changed {
		reqLogger.Info("request left approved before completion; not updated")
		return false, nil
	}
	reqLogger.Info("request completed and owner notified",
		logging.String(logging.FieldUserID, req.UserID),
		logging.String("emby_id", items[0].ID),
	)

	if err := j.notifier.Publish(ctx, notifications.EventRequestCompleted, notifications.Payload{
		"title":     req.Title,
		"mediaType": req.MediaType,
		"season":    req.SpecificSeason,
	}); err != nil {
		reqLogger.Warn("operator notification failed", logging.Error(err))
	}
	return true, nil
}

func (j *Job) finish(summary Summary, pending int, err error) {
	metrics.RecordReconcileRun(summary.Duration(), summary.Completed, pending, err)
	j.mu.Lock()
	j.last = &summary
	j.mu.Unlock()
}
