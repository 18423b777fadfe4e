package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arbminer/arbminer/internal/logger"
)

// RedisStore backs the cache with a Redis server. Redis failures are
// logged at debug level and treated as cache misses so that a missing
// or flaky backend never takes down the main flow.
type RedisStore struct {
	client *redis.Client
	log    logger.Interface
}

// RedisConfig holds the connection settings for the Redis backend.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// NewRedisStore creates a Redis-backed Store. The connection is lazy;
// a dead server surfaces as misses on first use, not as a constructor
// error.
func NewRedisStore(cfg RedisConfig, log logger.Interface) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &RedisStore{client: client, log: log}
}

// Ping verifies connectivity. Callers may use it to log a warning at
// startup; a failed ping does not disable the store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, namespace string, payload map[string]string) (string, bool) {
	key := Key(namespace, payload)
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		s.log.Debug("cache read failed, treating as miss", "namespace", namespace, "error", err)
		return "", false
	}
	return val, true
}

func (s *RedisStore) Set(ctx context.Context, namespace string, payload map[string]string, value string, ttl time.Duration) {
	key := Key(namespace, payload)
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.log.Debug("cache write failed, ignoring", "namespace", namespace, "error", err)
	}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
