package emby

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"embysub/internal/logging"
	"embysub/internal/metrics"
)

const breakerName = "emby-api"

var _ Inventory = (*BreakerClient)(nil)

// BreakerSettings tunes the circuit breaker. Zero values fall back to defaults.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// BreakerClient wraps an Inventory with a circuit breaker. While the breaker is
// open calls fail fast with gobreaker.ErrOpenState.
type BreakerClient struct {
	inner  Inventory
	cb     *gobreaker.CircuitBreaker[any]
	logger *slog.Logger
}

// NewBreakerClient wraps inner. The breaker opens once at least MinRequests calls
// were made in the window and the failure ratio reaches FailureRatio.
func NewBreakerClient(inner Inventory, settings BreakerSettings, logger *slog.Logger) *BreakerClient {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 3
	}
	if settings.Interval <= 0 {
		settings.Interval = time.Minute
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 2 * time.Minute
	}
	if settings.MinRequests == 0 {
		settings.MinRequests = 10
	}
	if settings.FailureRatio <= 0 {
		settings.FailureRatio = 0.6
	}
	logger = logging.NewComponentLogger(logger, "emby")

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("emby circuit breaker state change",
				logging.String("from", from.String()),
				logging.String("to", to.String()),
				logging.String(logging.FieldEventType, "circuit_breaker_transition"),
			)
			metrics.RecordCircuitTransition(name, from.String(), to.String())
		},
	})
	return &BreakerClient{inner: inner, cb: cb, logger: logger}
}

// State reports the current breaker state.
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}

// Counts reports the breaker counters for the current window.
func (b *BreakerClient) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

func execute[T any](b *BreakerClient, fn func() (T, error)) (T, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, _ := result.(T)
	return typed, nil
}

// Authenticate bypasses the breaker: a wrong password is not a server failure.
func (b *BreakerClient) Authenticate(ctx context.Context, username, password string) (*AuthResult, error) {
	return b.inner.Authenticate(ctx, username, password)
}

func (b *BreakerClient) LatestItems(ctx context.Context, limit int) ([]Item, error) {
	return execute(b, func() ([]Item, error) { return b.inner.LatestItems(ctx, limit) })
}

func (b *BreakerClient) FindByProviderID(ctx context.Context, provider, id string) ([]Item, error) {
	return execute(b, func() ([]Item, error) { return b.inner.FindByProviderID(ctx, provider, id) })
}

func (b *BreakerClient) ItemDetails(ctx context.Context, itemID string) (*Item, error) {
	return execute(b, func() (*Item, error) { return b.inner.ItemDetails(ctx, itemID) })
}

func (b *BreakerClient) Episodes(ctx context.Context, seriesID string, season *int) ([]Item, error) {
	return execute(b, func() ([]Item, error) { return b.inner.Episodes(ctx, seriesID, season) })
}

type image struct {
	data        []byte
	contentType string
}

func (b *BreakerClient) PrimaryImage(ctx context.Context, itemID string) ([]byte, string, error) {
	img, err := execute(b, func() (image, error) {
		data, contentType, err := b.inner.PrimaryImage(ctx, itemID)
		return image{data: data, contentType: contentType}, err
	})
	if err != nil {
		return nil, "", err
	}
	return img.data, img.contentType, nil
}
