package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vigialabs/vigia/internal/metrics"
	"github.com/vigialabs/vigia/internal/risk"
)

const redisKeyPrefix = "vigia:assessment:"

// RedisStore caches results in Redis so replicas share assessments.
// Backend failures never surface to callers: gets degrade to misses and
// puts are dropped, with the error counted and logged.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore returns a RedisStore for url (a redis:// connection URL).
func NewRedisStore(url string, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: redis.NewClient(opts), logger: logger}, nil
}

// Ping verifies connectivity, for readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (*risk.CombinedResult, bool) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.CacheErrorsTotal.Inc()
			s.logger.Warn("redis get failed", "error", err)
		}
		return nil, false
	}
	var result risk.CombinedResult
	if err := json.Unmarshal(raw, &result); err != nil {
		metrics.CacheErrorsTotal.Inc()
		s.logger.Warn("redis entry corrupt, evicting", "error", err)
		s.client.Del(ctx, redisKeyPrefix+key)
		return nil, false
	}
	return &result, true
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, key string, result *risk.CombinedResult, ttl time.Duration) {
	if result == nil {
		return
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	raw, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("marshal cached result failed", "error", err)
		return
	}
	if err := s.client.Set(ctx, redisKeyPrefix+key, raw, ttl).Err(); err != nil {
		metrics.CacheErrorsTotal.Inc()
		s.logger.Warn("redis set failed", "error", err)
	}
}

// Evict implements Store.
func (s *RedisStore) Evict(ctx context.Context, key string) {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		s.logger.Warn("redis del failed", "error", err)
	}
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
