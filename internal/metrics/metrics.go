package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embysub_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embysub_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embysub_api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"route"},
	)

	// External services (emby, tmdb, ntfy)
	ExternalRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embysub_external_request_duration_seconds",
			Help:    "Latency of calls to external services",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)

	ExternalRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embysub_external_request_errors_total",
			Help: "Failed calls to external services",
		},
		[]string{"service", "operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "embysub_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embysub_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Status resolution
	ResolverLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embysub_resolver_lookups_total",
			Help: "Catalog id lookups by strategy and outcome",
		},
		[]string{"strategy", "result"},
	)

	// Reconciliation
	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embysub_reconcile_runs_total",
			Help: "Reconciliation passes by result (ok, error, skipped)",
		},
		[]string{"result"},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "embysub_reconcile_duration_seconds",
			Help:    "Duration of reconciliation passes",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	ReconcileCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "embysub_reconcile_completed_total",
			Help: "Approved requests marked completed",
		},
	)

	ReconcilePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embysub_reconcile_pending_requests",
			Help: "Approved requests still waiting for Emby after the last pass",
		},
	)

	ReconcileLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "embysub_reconcile_last_success_timestamp_seconds",
			Help: "Unix time of the last successful reconciliation pass",
		},
	)

	// Store
	DBBusyRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embysub_db_busy_retries_total",
			Help: "SQLite busy retries by operation",
		},
		[]string{"operation"},
	)

	// Notifications
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embysub_notifications_sent_total",
			Help: "Operator push notifications by event and result",
		},
		[]string{"event", "result"},
	)
)

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, route string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordExternalCall records latency and failure for a call to emby, tmdb or ntfy.
func RecordExternalCall(service, operation string, duration time.Duration, err error) {
	ExternalRequestDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
	if err != nil {
		ExternalRequestErrors.WithLabelValues(service, operation).Inc()
	}
}

// RecordCircuitTransition publishes a breaker state change. States are the
// gobreaker names: closed, half-open, open.
func RecordCircuitTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(circuitStateValue(to))
}

func circuitStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// RecordResolution counts one catalog id lookup.
func RecordResolution(strategy string, found bool) {
	result := "miss"
	if found {
		result = "hit"
	}
	ResolverLookups.WithLabelValues(strategy, result).Inc()
}

// RecordReconcileRun records a finished reconciliation pass.
func RecordReconcileRun(duration time.Duration, completed, pending int, err error) {
	ReconcileDuration.Observe(duration.Seconds())
	if err != nil {
		ReconcileRuns.WithLabelValues("error").Inc()
		return
	}
	ReconcileRuns.WithLabelValues("ok").Inc()
	ReconcileCompleted.Add(float64(completed))
	ReconcilePending.Set(float64(pending))
	ReconcileLastSuccess.SetToCurrentTime()
}

// RecordReconcileSkipped counts a tick dropped because a pass was still running.
func RecordReconcileSkipped() {
	ReconcileRuns.WithLabelValues("skipped").Inc()
}

// RecordDBRetry counts a retry caused by SQLITE_BUSY.
func RecordDBRetry(operation string) {
	DBBusyRetries.WithLabelValues(operation).Inc()
}

// RecordNotification counts an operator push attempt.
func RecordNotification(event string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	NotificationsSent.WithLabelValues(event, result).Inc()
}
