package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// guardKeyTTL bounds how long a transition key is remembered. Duplicate
// deliveries arrive within seconds; a day is generous.
const guardKeyTTL = 24 * time.Hour

// RedisGuard implements TransitionGuard with a SETNX per transition key, so
// at-least-once delivery of the same underlying change fans out only once.
type RedisGuard struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisGuard(addr string, logger *zap.Logger) (*RedisGuard, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("Transition guard connected", zap.String("addr", addr))
	return &RedisGuard{client: client, logger: logger}, nil
}

// FirstDelivery claims the transition key. It returns true exactly once per
// (device, transition instant) pair until the key expires.
func (g *RedisGuard) FirstDelivery(ctx context.Context, deviceID string, transitionMillis int64) (bool, error) {
	key := fmt.Sprintf("firewatch:transition:%s:%d", deviceID, transitionMillis)
	ok, err := g.client.SetNX(ctx, key, 1, guardKeyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim transition key: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}
