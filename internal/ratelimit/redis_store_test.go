package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	return newMiniredisClient(t, miniredis.RunT(t))
}

func newMiniredisClient(t *testing.T, mr *miniredis.Miniredis) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStoreUpdateWritesWithTTL(t *testing.T) {
	mr, client := newMiniredis(t)
	s := NewRedisStore(client, 0)

	var seen []byte
	err := s.Update(context.Background(), "k", func(current []byte) ([]byte, time.Duration, error) {
		seen = current
		return []byte("v1"), 5 * time.Second, nil
	})
	require.NoError(t, err)
	assert.Nil(t, seen, "missing key is reported as nil")

	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
	assert.Equal(t, 5*time.Second, mr.TTL("k"))

	err = s.Update(context.Background(), "k", func(current []byte) ([]byte, time.Duration, error) {
		seen = current
		return nil, 0, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), seen)
	assert.Equal(t, 5*time.Second, mr.TTL("k"), "nil next leaves the key untouched")

	mr.FastForward(6 * time.Second)
	assert.False(t, mr.Exists("k"), "records expire on their own")
}

func TestRedisStoreCallbackErrorPassesThrough(t *testing.T) {
	_, client := newMiniredis(t)
	s := NewRedisStore(client, 0)
	boom := errors.New("boom")

	err := s.Update(context.Background(), "k", func([]byte) ([]byte, time.Duration, error) {
		return nil, 0, boom
	})
	assert.Same(t, boom, err)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestRedisStoreContention(t *testing.T) {
	mr, client := newMiniredis(t)
	intruder := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer intruder.Close()

	s := NewRedisStore(client, 3)
	calls := 0
	err := s.Update(context.Background(), "k", func([]byte) ([]byte, time.Duration, error) {
		calls++
		// another writer touches the watched key before EXEC
		require.NoError(t, intruder.Set(context.Background(), "k", "theirs", 0).Err())
		return []byte("ours"), time.Second, nil
	})

	assert.ErrorIs(t, err, ErrContention)
	assert.Equal(t, 3, calls)
	got, _ := mr.Get("k")
	assert.Equal(t, "theirs", got, "a lost CAS never overwrites the winner")
}

func TestRedisStoreRetriesAfterConflict(t *testing.T) {
	mr, client := newMiniredis(t)
	intruder := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer intruder.Close()

	s := NewRedisStore(client, 5)
	calls := 0
	err := s.Update(context.Background(), "k", func(current []byte) ([]byte, time.Duration, error) {
		calls++
		if calls == 1 {
			require.NoError(t, intruder.Set(context.Background(), "k", "theirs", 0).Err())
			return []byte("stale"), time.Second, nil
		}
		return append(append([]byte{}, current...), "+ours"...), time.Second, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	got, _ := mr.Get("k")
	assert.Equal(t, "theirs+ours", got, "retry observes the winner's write")
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, client := newMiniredis(t)
	s := NewRedisStore(client, 0)
	mr.Close()

	err := s.Update(context.Background(), "k", func([]byte) ([]byte, time.Duration, error) {
		return []byte("v"), time.Second, nil
	})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, s.Ping(context.Background()), ErrStoreUnavailable)
}

func TestRedisStorePing(t *testing.T) {
	_, client := newMiniredis(t)
	assert.NoError(t, NewRedisStore(client, 0).Ping(context.Background()))
}
