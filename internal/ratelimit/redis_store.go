package ratelimit

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxAttempts bounds the WATCH/MULTI/EXEC retry loop.
const DefaultMaxAttempts = 16

// RedisStore implements AtomicStore with optimistic transactions: WATCH the
// key, GET it, then SET it inside MULTI/EXEC. EXEC aborts if another client
// wrote the key after WATCH, in which case the whole cycle is retried.
type RedisStore struct {
	client      redis.UniversalClient
	maxAttempts int
}

var _ AtomicStore = (*RedisStore)(nil)

// NewRedisStore creates a store backed by client.
func NewRedisStore(client redis.UniversalClient, maxAttempts int) *RedisStore {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RedisStore{client: client, maxAttempts: maxAttempts}
}

// callbackError marks an error produced by the UpdateFunc so that it is not
// mistaken for a transport failure.
type callbackError struct {
	err error
}

func (e *callbackError) Error() string { return e.err.Error() }
func (e *callbackError) Unwrap() error { return e.err }

// Update implements AtomicStore.
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return err
		}

		next, ttl, err := fn(current)
		if err != nil {
			return &callbackError{err: err}
		}
		if next == nil {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var cbErr *callbackError
		if errors.As(err, &cbErr) {
			return cbErr.err
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%w: key %q after %d attempts", ErrContention, key, s.maxAttempts)
}

// Ping implements AtomicStore.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
