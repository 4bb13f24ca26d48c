package ratelimit

import (
	"context"
	"time"
)

// UpdateFunc computes the next payload from the current one. current is nil
// when the key does not exist. Returning a nil next leaves the key untouched.
// The function may be called more than once per Update and must not keep
// side effects from earlier calls.
type UpdateFunc func(current []byte) (next []byte, ttl time.Duration, err error)

// AtomicStore is a remote key-value store supporting atomic read-modify-write
// of byte payloads with per-key expiration.
type AtomicStore interface {
	// Update applies fn atomically to key. Errors returned by fn are returned
	// unchanged. Transport failures wrap ErrStoreUnavailable; losing every
	// compare-and-swap attempt returns ErrContention.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}
