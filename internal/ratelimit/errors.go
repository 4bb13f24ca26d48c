package ratelimit

import "errors"

var (
	// ErrRateLimited is returned to callers when a request exceeds its quota.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrStoreUnavailable indicates the remote store could not be reached,
	// did not answer within the store timeout, or the circuit breaker is open.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")

	// ErrContention indicates the compare-and-swap loop exhausted its attempts
	// because other writers kept changing the same bucket.
	ErrContention = errors.New("rate limit bucket contention")

	// ErrInvalidCost is returned when a non-positive cost is requested.
	ErrInvalidCost = errors.New("cost must be positive")

	// ErrCorruptBucket is returned by DecodeBucket for malformed payloads.
	ErrCorruptBucket = errors.New("corrupt bucket payload")
)
