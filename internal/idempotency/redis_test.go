package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore("redis://"+mr.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

// ============================================
// Reserve / Complete / Release
// ============================================

func TestRedisStore_ReserveCompleteReplay(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	result, reserved, err := s.Reserve(ctx, "u-1:caja-1-0001")
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Empty(t, result)
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"u-1:caja-1-0001"))

	require.NoError(t, s.Complete(ctx, "u-1:caja-1-0001", "o-1"))

	result, reserved, err = s.Reserve(ctx, "u-1:caja-1-0001")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, "o-1", result)

	stored, err := mr.Get(keyPrefix + "u-1:caja-1-0001")
	require.NoError(t, err)
	assert.Equal(t, "o-1", stored)
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"u-1:caja-1-0001"))
}

func TestRedisStore_InProgress(t *testing.T) {
	s, _ := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	_, reserved, err := s.Reserve(ctx, "u-1:caja-1-0002")
	require.NoError(t, err)
	require.True(t, reserved)

	_, reserved, err = s.Reserve(ctx, "u-1:caja-1-0002")
	assert.ErrorIs(t, err, ErrInProgress)
	assert.False(t, reserved)
}

func TestRedisStore_ReleaseFreesKey(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	_, _, err := s.Reserve(ctx, "u-1:caja-1-0003")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "u-1:caja-1-0003"))
	assert.False(t, mr.Exists(keyPrefix+"u-1:caja-1-0003"))

	_, reserved, err := s.Reserve(ctx, "u-1:caja-1-0003")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestRedisStore_KeysExpire(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	_, _, err := s.Reserve(ctx, "u-1:pending")
	require.NoError(t, err)
	_, _, err = s.Reserve(ctx, "u-1:done")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "u-1:done", "o-1"))

	mr.FastForward(time.Minute + time.Second)

	for _, key := range []string{"u-1:pending", "u-1:done"} {
		result, reserved, err := s.Reserve(ctx, key)
		require.NoError(t, err, key)
		assert.True(t, reserved, key)
		assert.Empty(t, result, key)
	}
}

func TestRedisStore_SettleAfterClientCancel(t *testing.T) {
	s, _ := newTestRedisStore(t, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	_, reserved, err := s.Reserve(ctx, "u-1:caja-1-0004")
	require.NoError(t, err)
	require.True(t, reserved)
	cancel()

	err = s.Release(ctx, "u-1:caja-1-0004")
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, s.Release(context.WithoutCancel(ctx), "u-1:caja-1-0004"))

	_, reserved, err = s.Reserve(context.Background(), "u-1:caja-1-0004")
	require.NoError(t, err)
	assert.True(t, reserved)
}

// ============================================
// Failures
// ============================================

func TestRedisStore_ServerErrors(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Hour)
	ctx := context.Background()
	mr.SetError("ERR backend unavailable")

	_, reserved, err := s.Reserve(ctx, "u-1:caja-1-0005")
	assert.False(t, reserved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve idempotency key")

	assert.ErrorContains(t, s.Complete(ctx, "u-1:caja-1-0005", "o-1"), "complete idempotency key")
	assert.ErrorContains(t, s.Release(ctx, "u-1:caja-1-0005"), "release idempotency key")
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	_, err := NewRedisStore("not-a-url", time.Hour)
	assert.ErrorContains(t, err, "parse redis URL")

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisStore("redis://"+addr, time.Hour)
	assert.ErrorContains(t, err, "ping redis")
}
