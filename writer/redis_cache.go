package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "orderly/config"
	"orderly/internal/fanout"
	"orderly/logger"
	"orderly/models"
)

const redisDialTimeout = 5 * time.Second

// Setter is the part of *redis.Client the cache uses.
type Setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisCache keeps the latest merged book under one key with a TTL, so a
// stale key disappears when the aggregator stops publishing.
type RedisCache struct {
	*bookSink
	client Setter
	key    string
	ttl    time.Duration
}

func NewRedisCache(ctx context.Context, cfg appconfig.RedisConfig, dist *fanout.Distributor, reportInterval time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: redisDialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Address, err)
	}

	rc := newRedisCache(dist, client, cfg.Key, cfg.TTL, reportInterval)
	rc.log.WithComponent("redis_cache").WithFields(logger.Fields{
		"address": cfg.Address,
		"key":     cfg.Key,
		"ttl":     cfg.TTL.String(),
	}).Info("redis cache initialized")
	return rc, nil
}

func newRedisCache(dist *fanout.Distributor, client Setter, key string, ttl time.Duration, reportInterval time.Duration) *RedisCache {
	rc := &RedisCache{client: client, key: key, ttl: ttl}
	rc.bookSink = newBookSink("redis_cache", dist, reportInterval, rc.set)
	return rc
}

func (rc *RedisCache) set(ctx context.Context, _ models.MergedBook, data []byte) error {
	return rc.client.Set(ctx, rc.key, data, rc.ttl).Err()
}

func (rc *RedisCache) Stop() {
	rc.bookSink.Stop()
	if err := rc.client.Close(); err != nil {
		rc.log.WithComponent("redis_cache").WithError(err).Warn("failed to close redis client")
	}
}
