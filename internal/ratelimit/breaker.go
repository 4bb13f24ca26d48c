package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BreakerSettings configures BreakerStore.
type BreakerSettings struct {
	Name string
	// Failures is the number of consecutive store failures that opens the breaker.
	Failures int
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration
}

// BreakerStore wraps an AtomicStore with a circuit breaker so that a dead
// store is not hammered with calls that would only time out. While open,
// every call fails fast with ErrStoreUnavailable.
type BreakerStore struct {
	next AtomicStore
	cb   *gobreaker.CircuitBreaker
}

var _ AtomicStore = (*BreakerStore)(nil)

// NewBreakerStore wraps next. Only errors wrapping ErrStoreUnavailable count
// as failures; contention and callback errors do not trip the breaker.
func NewBreakerStore(next AtomicStore, settings BreakerSettings, metrics *Metrics, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.Name == "" {
		settings.Name = "ratelimit-store"
	}
	failures := uint32(1)
	if settings.Failures > 0 {
		failures = uint32(settings.Failures)
	}

	st := gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrStoreUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			level := slog.LevelInfo
			if to == gobreaker.StateOpen {
				level = slog.LevelError
			}
			logger.Log(context.Background(), level, "rate limit store circuit breaker state change",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.breakerState(to)

			_, span := tracer.Start(context.Background(), "ratelimit.breaker.state_change",
				trace.WithSpanKind(trace.SpanKindInternal))
			span.AddEvent("state_change", trace.WithAttributes(
				attribute.String("circuitbreaker.name", name),
				attribute.String("circuitbreaker.from", from.String()),
				attribute.String("circuitbreaker.to", to.String()),
			))
			span.End()
		},
	}

	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerStore) execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

// Update implements AtomicStore.
func (b *BreakerStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return b.execute(func() error { return b.next.Update(ctx, key, fn) })
}

// Ping implements AtomicStore. Pings bypass the breaker so readiness reflects
// the store itself.
func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

// State reports the breaker state.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}
