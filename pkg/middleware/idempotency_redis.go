package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"concierge/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "idempotency:"

// RedisIdempotencyStore shares cached responses across replicas. Redis
// failures degrade to a cache miss.
type RedisIdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewRedisIdempotencyStore(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb, ttl: ttl, log: log}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool) {
	raw, err := s.rdb.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("Idempotency lookup failed", "error", err)
		}
		return nil, false
	}

	var cached CachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		s.log.Warn("Idempotency entry unreadable", "error", err)
		return nil, false
	}
	return &cached, true
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, response *CachedResponse) {
	response.CreatedAt = time.Now()
	raw, err := json.Marshal(response)
	if err != nil {
		s.log.Warn("Idempotency entry not encodable", "error", err)
		return
	}
	// SetNX keeps the first response when two retries race.
	if err := s.rdb.SetNX(ctx, idempotencyKeyPrefix+key, raw, s.ttl).Err(); err != nil {
		s.log.Warn("Idempotency store failed", "error", err)
	}
}

func (s *RedisIdempotencyStore) Stop() {}
