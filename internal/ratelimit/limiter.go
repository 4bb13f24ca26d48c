package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phrazzld/gatekeeper/internal/platform/logger"
)

var tracer = otel.Tracer("gatekeeper/ratelimit")

// FailurePolicy decides what happens when the remote store is unavailable.
type FailurePolicy int

const (
	// FailOpen admits requests while the store is unavailable. It is the
	// default: an outage of the limiter's store degrades to no limiting
	// rather than to no service.
	FailOpen FailurePolicy = iota

	// FailClosed rejects requests while the store is unavailable.
	FailClosed
)

// String returns the configuration name of the policy.
func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "closed"
	}
	return "open"
}

// ParseFailurePolicy maps "open" and "closed" to a policy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "open", "":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	default:
		return FailOpen, fmt.Errorf("unknown failure policy %q", s)
	}
}

// Decision is the outcome of one TryConsume call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	Outcome    string
}

// Options configures a Limiter.
type Options struct {
	Policy        Policy
	FailurePolicy FailurePolicy
	// StoreTimeout bounds each remote call. A timeout counts as unavailability.
	StoreTimeout time.Duration
	KeyPrefix    string
	Clock        func() time.Time
	Metrics      *Metrics
	Logger       *slog.Logger
}

// Limiter enforces a token bucket per key against an AtomicStore.
type Limiter struct {
	store   AtomicStore
	policy  Policy
	failure FailurePolicy
	timeout time.Duration
	prefix  string
	now     func() time.Time
	metrics *Metrics
	logger  *slog.Logger
}

// DefaultStoreTimeout is used when Options.StoreTimeout is zero.
const DefaultStoreTimeout = 250 * time.Millisecond

// NewLimiter creates a Limiter.
func NewLimiter(store AtomicStore, opts Options) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("rate limit store cannot be nil")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit policy: %w", err)
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Limiter{
		store:   store,
		policy:  opts.Policy,
		failure: opts.FailurePolicy,
		timeout: opts.StoreTimeout,
		prefix:  opts.KeyPrefix,
		now:     opts.Clock,
		metrics: opts.Metrics,
		logger:  opts.Logger.With("component", "rate_limiter"),
	}, nil
}

// Policy returns the bucket policy.
func (l *Limiter) Policy() Policy {
	return l.policy
}

// FailurePolicy returns the configured failure policy.
func (l *Limiter) FailurePolicy() FailurePolicy {
	return l.failure
}

func (l *Limiter) storeKey(key string) string {
	if l.prefix == "" {
		return key
	}
	return l.prefix + ":" + key
}

func (l *Limiter) log(ctx context.Context) *slog.Logger {
	if lg := logger.FromContext(ctx); lg != nil {
		return lg.With("component", "rate_limiter")
	}
	return l.logger
}

// TryConsume takes cost tokens from the bucket for key in one atomic store
// operation. When the store is unavailable the returned error wraps
// ErrStoreUnavailable and Decision.Allowed follows the failure policy. When
// the compare-and-swap loop is exhausted the request is denied and the error
// wraps ErrContention.
func (l *Limiter) TryConsume(ctx context.Context, key string, cost int) (Decision, error) {
	if cost <= 0 {
		return Decision{Limit: l.policy.Capacity}, ErrInvalidCost
	}

	ctx, span := tracer.Start(ctx, "ratelimit.TryConsume",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("ratelimit.cost", cost)))
	defer span.End()

	// The update is self-contained per attempt, so it may finish after the
	// caller gives up; it is bounded by the store timeout instead.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	var decision Decision
	fn := func(current []byte) ([]byte, time.Duration, error) {
		now := l.now()
		bucket := l.policy.Full(now)
		if current != nil {
			decoded, err := DecodeBucket(current)
			if err != nil {
				l.log(ctx).Warn("discarding corrupt rate limit bucket",
					"key", key,
					"error", err)
			} else {
				bucket = l.policy.Refill(decoded, now)
			}
		}

		decision = Decision{Limit: l.policy.Capacity}
		if bucket.Tokens+1e-9 < float64(cost) {
			decision.Outcome = OutcomeDenied
			decision.Remaining = remaining(bucket.Tokens)
			decision.RetryAfter = l.policy.RetryAfter(bucket, cost)
			return nil, 0, nil
		}

		bucket.Tokens = math.Max(0, bucket.Tokens-float64(cost))
		decision.Allowed = true
		decision.Outcome = OutcomeAllowed
		decision.Remaining = remaining(bucket.Tokens)
		return EncodeBucket(bucket), l.policy.TimeToFull(), nil
	}

	start := time.Now()
	err := l.store.Update(storeCtx, l.storeKey(key), fn)
	l.metrics.observeStore(time.Since(start))

	if err != nil {
		decision, err = l.onStoreError(ctx, key, err)
		span.SetAttributes(attribute.String("ratelimit.outcome", decision.Outcome))
		span.SetStatus(codes.Error, err.Error())
		return decision, err
	}

	l.metrics.decision(decision.Outcome)
	span.SetAttributes(
		attribute.String("ratelimit.outcome", decision.Outcome),
		attribute.Int("ratelimit.remaining", decision.Remaining))
	if !decision.Allowed {
		l.log(ctx).Debug("rate limit exceeded",
			"key", key,
			"retry_after_ms", decision.RetryAfter.Milliseconds())
	}
	return decision, nil
}

// onStoreError resolves a failed store update. Contention denies; every
// other failure is unavailability and follows the failure policy.
func (l *Limiter) onStoreError(ctx context.Context, key string, err error) (Decision, error) {
	d := Decision{Limit: l.policy.Capacity}

	if errors.Is(err, ErrContention) {
		d.Outcome = OutcomeContention
		d.RetryAfter = time.Second
		l.metrics.decision(d.Outcome)
		l.log(ctx).Warn("rate limit bucket contention, denying request", "key", key)
		return d, err
	}

	if !errors.Is(err, ErrStoreUnavailable) {
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if l.failure == FailClosed {
		d.Outcome = OutcomeFailClosed
		d.RetryAfter = time.Second
	} else {
		d.Allowed = true
		d.Outcome = OutcomeFailOpen
	}
	l.metrics.decision(d.Outcome)
	l.log(ctx).Error("rate limit store unavailable",
		"key", key,
		"failure_policy", l.failure.String(),
		"allowed", d.Allowed,
		"error", err)
	return d, err
}

// Ping checks the store within the store timeout.
func (l *Limiter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.store.Ping(ctx)
}

func remaining(tokens float64) int {
	if tokens <= 0 {
		return 0
	}
	return int(math.Floor(tokens + 1e-9))
}
