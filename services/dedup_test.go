package services

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisGuardFirstDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	guard, err := NewRedisGuard(mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	defer guard.Close()

	ctx := context.Background()

	first, err := guard.FirstDelivery(ctx, "dev", 1700000000000)
	require.NoError(t, err)
	assert.True(t, first)

	dup, err := guard.FirstDelivery(ctx, "dev", 1700000000000)
	require.NoError(t, err)
	assert.False(t, dup, "same transition key is claimed only once")

	other, err := guard.FirstDelivery(ctx, "dev", 1700000060000)
	require.NoError(t, err)
	assert.True(t, other, "a new transition instant is a new key")

	otherDev, err := guard.FirstDelivery(ctx, "dev2", 1700000000000)
	require.NoError(t, err)
	assert.True(t, otherDev)
}

func TestRedisGuardKeyExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	guard, err := NewRedisGuard(mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	defer guard.Close()

	ctx := context.Background()
	first, err := guard.FirstDelivery(ctx, "dev", 42)
	require.NoError(t, err)
	require.True(t, first)

	mr.FastForward(guardKeyTTL)

	again, err := guard.FirstDelivery(ctx, "dev", 42)
	require.NoError(t, err)
	assert.True(t, again, "expired keys can be claimed again")
}

func TestNewRedisGuardUnreachable(t *testing.T) {
	_, err := NewRedisGuard("127.0.0.1:1", zap.NewNop())
	assert.Error(t, err)
}
