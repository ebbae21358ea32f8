package store

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisCallTimeout = 500 * time.Millisecond

// RedisStore is a Store backed by a Redis instance. Get/Set failures are
// logged at debug level and treated as miss/dropped-write respectively —
// the Quote Store contract never surfaces store errors to callers.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr and wraps it as a Store.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewAuto returns a RedisStore when REDIS_ADDR is set in the environment,
// otherwise falls back to a MemoryStore. This mirrors the teacher's
// environment-driven store selection so local development needs no
// external dependency.
func NewAuto() Store {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return NewRedisStore(addr)
	}
	return NewMemoryStore()
}

func (s *RedisStore) Get(ctx context.Context, key string) (CacheEntry, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("quote store get failed, treating as miss")
		}
		return CacheEntry{}, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("quote store entry corrupt, treating as miss")
		return CacheEntry{}, false
	}
	return entry, true
}

func (s *RedisStore) Set(ctx context.Context, key string, entry CacheEntry, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()

	raw, err := json.Marshal(entry)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("quote store entry encode failed, dropping write")
		return
	}
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("quote store set failed, dropping write")
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
