package translate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"codeberg.org/snonux/yamltr/internal/retry"
)

// BreakerConfig controls when the circuit opens and how long it stays
// open before probing the backend again.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig returns the circuit breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// BreakerProvider shields a backend behind a circuit breaker. A backend
// that keeps failing stops receiving traffic until the breaker's
// timeout elapses.
type BreakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps a provider with a circuit breaker. Rejected
// calls carry the api error category so they are retried on the same
// schedule as backend failures.
func NewBreakerProvider(inner Provider, cfg BreakerConfig, logger *slog.Logger) *BreakerProvider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit state changed",
				"provider", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Validation failures are the request's fault, not the
			// backend's, and must not open the circuit.
			var terr *Error
			if errors.As(err, &terr) {
				return terr.Category == retry.CategoryValidation
			}
			return false
		},
	}
	return &BreakerProvider{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

// Name identifies the wrapped backend.
func (b *BreakerProvider) Name() string { return b.inner.Name() }

// Translate forwards through the circuit breaker.
func (b *BreakerProvider) Translate(ctx context.Context, req Request) (Result, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Translate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, &Error{
				Provider: b.inner.Name(),
				Category: retry.CategoryAPI,
				Err:      err,
			}
		}
		return Result{}, err
	}
	return out.(Result), nil
}
