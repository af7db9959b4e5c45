package keystore

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces cache entries in a shared Redis database.
const DefaultRedisPrefix = "nimbus:offline:"

const scanBatch = 256

// RedisStore implements KeyStore on a Redis database. Every entry lives
// under prefix+key, so ListKeys and Clear only touch this store's keys.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreConfig holds configuration for the Redis store.
type RedisStoreConfig struct {
	Addr      string // Redis address (e.g. "localhost:6379")
	Password  string
	DB        int
	KeyPrefix string // default: DefaultRedisPrefix
}

// NewRedisStore creates a Redis-backed store with its own client.
func NewRedisStore(cfg RedisStoreConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreFromClient(client, cfg.KeyPrefix)
}

// NewRedisStoreFromClient creates a Redis store using an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Put(ctx context.Context, key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return &StorageIOError{Op: "put", Key: key, Err: err}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageIOError{Op: "get", Key: key, Err: err}
	}
	return val, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return &StorageIOError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (s *RedisStore) ListKeys(ctx context.Context) ([]string, error) {
	keys := []string{}
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		k := strings.TrimPrefix(iter.Val(), s.prefix)
		if k != "" {
			keys = append(keys, k)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, &StorageIOError{Op: "list", Err: err}
	}
	return keys, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return &StorageIOError{Op: "clear", Err: err}
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return &StorageIOError{Op: "clear", Err: err}
	}
	if len(batch) > 0 {
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return &StorageIOError{Op: "clear", Err: err}
		}
	}
	return nil
}

// Ping verifies connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
