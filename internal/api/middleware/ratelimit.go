package middleware

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/phrazzld/gatekeeper/internal/api/shared"
	"github.com/phrazzld/gatekeeper/internal/ratelimit"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "RateLimit-Limit"
	HeaderRateLimitRemaining = "RateLimit-Remaining"
	HeaderRetryAfter         = "Retry-After"
)

// Consumer takes tokens from a rate limit bucket.
type Consumer interface {
	TryConsume(ctx context.Context, key string, cost int) (ratelimit.Decision, error)
}

// KeyFunc derives the bucket key for a request.
type KeyFunc func(r *http.Request) string

// RateLimitOptions configures RateLimit.
type RateLimitOptions struct {
	// KeyFunc defaults to CallerKey.
	KeyFunc KeyFunc
	// Cost defaults to 1.
	Cost int
	// SkipPaths are exempt, e.g. health probes.
	SkipPaths []string
}

// CallerKey keys by principal when the request is already authenticated and
// by client IP otherwise.
func CallerKey(r *http.Request) string {
	if authCtx, ok := shared.AuthenticatedFrom(r.Context()); ok {
		return "principal:" + authCtx.Identifier
	}
	return "ip:" + clientHost(r.RemoteAddr)
}

func clientHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// RateLimit admits requests through limiter. Denials get 429 with a
// Retry-After hint. When the store is unavailable the limiter's failure
// policy decides: fail-open requests proceed, fail-closed requests get 503.
func RateLimit(limiter Consumer, opts RateLimitOptions) func(http.Handler) http.Handler {
	if opts.KeyFunc == nil {
		opts.KeyFunc = CallerKey
	}
	if opts.Cost <= 0 {
		opts.Cost = 1
	}
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := limiter.TryConsume(r.Context(), opts.KeyFunc(r), opts.Cost)
			setRateLimitHeaders(w, decision)

			if decision.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set(HeaderRetryAfter, retryAfterSeconds(decision))
			if errors.Is(err, ratelimit.ErrStoreUnavailable) {
				shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable,
					"Service temporarily unavailable", err)
				return
			}
			if err == nil {
				err = ratelimit.ErrRateLimited
			}
			shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests, "Too many requests", err)
		})
	}
}

// setRateLimitHeaders omits Remaining when the decision was not computed
// from the bucket, so a fail-open response never advertises a count.
func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	if d.Limit > 0 {
		w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	}
	if d.Outcome == ratelimit.OutcomeAllowed || d.Outcome == ratelimit.OutcomeDenied {
		w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	}
}

func retryAfterSeconds(d ratelimit.Decision) string {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
