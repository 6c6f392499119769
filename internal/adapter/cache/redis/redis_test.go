package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, Options) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, Options{Addr: mr.Addr()}
}

func TestIdempotencyMarker(t *testing.T) {
	mr, opts := newTestClient(t)
	client := NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "delivery:m1")
	require.NoError(t, err)
	assert.False(t, ok)

	wrote, err := store.SetIfAbsent(ctx, "delivery:m1", "done", time.Hour)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = store.SetIfAbsent(ctx, "delivery:m1", "other", time.Hour)
	require.NoError(t, err)
	assert.False(t, wrote)

	val, err := mr.Get("delivery:m1")
	require.NoError(t, err)
	assert.Equal(t, "done", val)

	ok, err = store.Exists(ctx, "delivery:m1")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Hour)
	ok, err = store.Exists(ctx, "delivery:m1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIncrementRollingWindow(t *testing.T) {
	mr, opts := newTestClient(t)
	client := NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	store := NewIdempotencyStore(client)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := store.Increment(ctx, "attempts:m1", 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, n)
		mr.FastForward(6 * time.Second)
	}
	assert.Greater(t, mr.TTL("attempts:m1"), time.Duration(0))

	mr.FastForward(11 * time.Second)
	n, err := store.Increment(ctx, "attempts:m1", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, store.Delete(ctx, "attempts:m1"))
	assert.False(t, mr.Exists("attempts:m1"))
}

func TestStoreErrorsWhenServerDown(t *testing.T) {
	mr, opts := newTestClient(t)
	client := NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	store := NewIdempotencyStore(client)
	mr.Close()

	_, err := store.Exists(context.Background(), "delivery:m1")
	assert.Error(t, err)
	_, err = store.Increment(context.Background(), "attempts:m1", time.Second)
	assert.Error(t, err)
	assert.Error(t, Ping(context.Background(), client))
}

func TestDeliveryLock(t *testing.T) {
	mr, opts := newTestClient(t)
	client := NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	lock := NewDeliveryLock(client)
	ctx := context.Background()

	release, ok, err := lock.Acquire(ctx, "lock:delivery:m1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lock.Acquire(ctx, "lock:delivery:m1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	release(ctx)
	assert.False(t, mr.Exists("lock:delivery:m1"))

	release, ok, err = lock.Acquire(ctx, "lock:delivery:m1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	release(ctx)
}
