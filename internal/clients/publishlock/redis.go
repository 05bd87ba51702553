// Package publishlock implements interfaces.PublishLock against Redis: a
// SETNX-with-TTL mutual-exclusion lock keyed by campaign and channel, so two
// worker processes never run the same publish job at the same time.
package publishlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/domainpress/pipeline/internal/common"
)

// RedisLock implements interfaces.PublishLock over a *redis.Client.
type RedisLock struct {
	client *redis.Client
	logger *common.Logger
}

// NewRedisLock builds a RedisLock over an already-connected client.
func NewRedisLock(client *redis.Client, logger *common.Logger) *RedisLock {
	return &RedisLock{client: client, logger: logger}
}

// Dial connects to addr and verifies reachability with a short-lived ping,
// mirroring the connect-then-ping idiom used across this pack's Redis
// clients rather than deferring the first error to the caller's first
// Acquire.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (l *RedisLock) key(campaignID, channel string) string {
	return fmt.Sprintf("publishlock:%s:%s", campaignID, channel)
}

// Acquire attempts to set the lock key with NX semantics; the TTL is a
// safety net against a worker crashing mid-publish and never releasing it.
func (l *RedisLock) Acquire(ctx context.Context, campaignID, channel string, ttl time.Duration) (bool, error) {
	key := l.key(campaignID, channel)
	ok, err := l.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		l.logger.Warn().Err(err).Str("campaign_id", campaignID).Str("channel", channel).Msg("publish lock acquire failed, proceeding unlocked")
		return false, err
	}
	return ok, nil
}

// Release deletes the lock key so a legitimate retry of the same publish
// job doesn't have to wait out the full TTL.
func (l *RedisLock) Release(ctx context.Context, campaignID, channel string) error {
	key := l.key(campaignID, channel)
	if err := l.client.Del(ctx, key).Err(); err != nil {
		l.logger.Warn().Err(err).Str("campaign_id", campaignID).Str("channel", channel).Msg("publish lock release failed")
		return err
	}
	return nil
}

// Close closes the underlying Redis connection.
func (l *RedisLock) Close() error {
	return l.client.Close()
}
