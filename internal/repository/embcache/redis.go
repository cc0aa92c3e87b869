package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/snapvalue/snapvalue/internal/domain"
)

// RedisCache shares the embedding cache between processes via Redis.
// Cache failures are never fatal: a failed Get is a miss, a failed Put is
// logged and dropped. Concurrent Puts for the same key are idempotent (same
// image bytes produce the same embedding), so no locking is needed.
type RedisCache struct {
	client     rueidis.Client
	keyPrefix  string
	fullCrops  domain.CropSet
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// RedisConfig holds connection parameters for the redis cache driver.
type RedisConfig struct {
	Addrs     []string
	Password  string
	KeyPrefix string
}

// NewRedis creates a Redis-backed embedding cache.
func NewRedis(
	cfg RedisConfig, fullCrops domain.CropSet,
	cacheTotal *prometheus.CounterVec, logger *zap.Logger,
) (*RedisCache, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &RedisCache{
		client:     client,
		keyPrefix:  cfg.KeyPrefix + "emb_cache:",
		fullCrops:  fullCrops,
		cacheTotal: cacheTotal,
		logger:     logger,
	}, nil
}

// Close releases the underlying client.
func (c *RedisCache) Close() { c.client.Close() }

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string, crops domain.CropSet) ([][]float32, bool) {
	if vecs, ok := c.fetch(ctx, key, crops); ok {
		c.inc("hit")
		return vecs, true
	}

	if crops.PrefixOf(c.fullCrops) {
		if vecs, ok := c.fetch(ctx, key, c.fullCrops); ok && len(vecs) >= len(crops) {
			c.inc("hit_prefix")
			return vecs[:len(crops)], true
		}
	}

	c.inc("miss")
	return nil, false
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, key string, crops domain.CropSet, vectors [][]float32) {
	if key == "" || len(vectors) == 0 {
		return
	}
	rkey := c.redisKey(key, crops)
	cmd := c.client.B().Set().Key(rkey).Value(string(vectorsToBytes(vectors))).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", rkey), zap.Error(err))
	}
}

func (c *RedisCache) fetch(ctx context.Context, key string, crops domain.CropSet) ([][]float32, bool) {
	rkey := c.redisKey(key, crops)
	cmd := c.client.B().Get().Key(rkey).Build()
	data, err := c.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if !rueidis.IsRedisNil(err) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", rkey), zap.Error(err))
		}
		return nil, false
	}

	vecs, err := bytesToVectors(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", rkey), zap.Error(err))
		return nil, false
	}
	return vecs, true
}

func (c *RedisCache) redisKey(key string, crops domain.CropSet) string {
	h := sha256.Sum256([]byte(key))
	return c.keyPrefix + hex.EncodeToString(h[:]) + ":" + crops.Signature()
}

func (c *RedisCache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}
