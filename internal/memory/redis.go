// Package memory provides the short-term conversation memory store.
//
// This file implements the Redis-backed store. Keys follow the
// user_memory:{phone} scheme with the phone number reduced to digits.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/aleenlabs/aleen-agents/internal/models"
	"github.com/aleenlabs/aleen-agents/internal/util"
)

// keyPrefix namespaces conversation memory keys in Redis.
const keyPrefix = "user_memory:"

// Opts holds configuration for the Redis store.
type Opts struct {
	Addr     string
	Password string
	DB       int
}

// Option configures the Redis store.
type Option func(*Opts)

// WithAddr sets the Redis server address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPassword sets the Redis password.
func WithPassword(password string) Option {
	return func(o *Opts) { o.Password = password }
}

// WithDB sets the Redis database index.
func WithDB(db int) Option {
	return func(o *Opts) { o.DB = db }
}

// RedisStore is the Redis-backed conversation memory store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis store based on provided options.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	slog.Debug("RedisStore.NewRedisStore: creating Redis store", "addr", cfg.Addr, "db", cfg.DB)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: client}, nil
}

// memoryKey builds the Redis key for a phone number.
func memoryKey(phone string) string {
	return keyPrefix + util.CanonicalPhone(phone)
}

// History returns the stored turns for a phone number, oldest first.
func (s *RedisStore) History(ctx context.Context, phone string) ([]models.Turn, error) {
	key := memoryKey(phone)
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return []models.Turn{}, nil
	}
	if err != nil {
		slog.Error("RedisStore.History: get failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to read conversation memory: %w", err)
	}

	var turns []models.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		// A corrupt value is unrecoverable; start the conversation fresh.
		slog.Error("RedisStore.History: corrupt memory value, resetting", "error", err, "key", key)
		return []models.Turn{}, nil
	}
	return turns, nil
}

// AppendTurns appends turns, evicts beyond the cap, and refreshes the TTL.
// Two concurrent writers for the same phone race read-then-write; the
// design accepts last-write-wins since one WhatsApp thread is effectively
// serial.
func (s *RedisStore) AppendTurns(ctx context.Context, phone string, turns ...models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	existing, err := s.History(ctx, phone)
	if err != nil {
		return err
	}
	updated := trimTurns(append(existing, turns...))

	data, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation memory: %w", err)
	}

	key := memoryKey(phone)
	if err := s.client.Set(ctx, key, data, models.MemoryTTL).Err(); err != nil {
		slog.Error("RedisStore.AppendTurns: set failed", "error", err, "key", key)
		return fmt.Errorf("failed to write conversation memory: %w", err)
	}
	slog.Debug("RedisStore.AppendTurns: memory saved", "key", key, "entries", len(updated))
	return nil
}

// Clear removes the memory for a phone number.
func (s *RedisStore) Clear(ctx context.Context, phone string) error {
	key := memoryKey(phone)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		slog.Error("RedisStore.Clear: delete failed", "error", err, "key", key)
		return fmt.Errorf("failed to clear conversation memory: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
