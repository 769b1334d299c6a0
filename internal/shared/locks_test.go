package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestMutexAcquireRelease(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)

	m := NewMutex(client, CommitLockKey(), time.Minute, time.Second)
	require.NoError(t, m.Acquire(ctx))

	// Second holder times out while the first holds the lock.
	other := NewMutex(client, CommitLockKey(), time.Minute, 300*time.Millisecond)
	err := other.Acquire(ctx)
	require.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, m.Release(ctx))
	require.NoError(t, other.Acquire(ctx))
	require.NoError(t, other.Release(ctx))
}

func TestMutexReleaseOnlyOwnToken(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)

	first := NewMutex(client, CommitLockKey(), time.Minute, time.Second)
	require.NoError(t, first.Acquire(ctx))
	require.NoError(t, first.Release(ctx))

	second := NewMutex(client, CommitLockKey(), time.Minute, time.Second)
	require.NoError(t, second.Acquire(ctx))

	// A stale release from the first holder must not free the second's lock.
	require.NoError(t, first.Release(ctx))
	val, err := client.Get(ctx, CommitLockKey()).Result()
	require.NoError(t, err)
	require.NotEmpty(t, val)
}

func TestMutexReleaseWithoutAcquireIsNoop(t *testing.T) {
	client := newTestRedis(t)
	m := NewMutex(client, CommitLockKey(), time.Minute, time.Second)
	require.NoError(t, m.Release(context.Background()))
}
