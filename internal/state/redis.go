package state

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists state as a single JSON value in Redis. This is the
// backend used by scheduled (CI-hosted) runs, where local disk does not
// survive between invocations; Upstash and plain Redis both work.
type RedisStore struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewRedisStore creates a Redis-backed store writing to the given key.
func NewRedisStore(addr, password string, db int, key string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		key:    key,
		logger: logger.With("store", "redis"),
	}
}

var _ Store = (*RedisStore)(nil)

// Load reads the snapshot. A missing key, connection failure, or corrupt
// value yields a fresh state.
func (r *RedisStore) Load(ctx context.Context) *BotState {
	data, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis state unreadable, starting fresh", "key", r.key, "error", err)
		}
		return NewBotState()
	}

	s := NewBotState()
	if err := json.Unmarshal([]byte(data), s); err != nil {
		r.logger.Warn("redis state corrupt, starting fresh", "key", r.key, "error", err)
		return NewBotState()
	}
	return s
}

// Save writes the snapshot. The value has no expiry; state is meant to
// outlive any single run.
func (r *RedisStore) Save(ctx context.Context, s *BotState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return &PersistenceError{Backend: "redis", Err: err}
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return &PersistenceError{Backend: "redis", Err: err}
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
