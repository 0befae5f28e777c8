// Package redis implements the Redis-backed fast paths of the engine:
// the dedup token store and a general-purpose cache for read-side
// views.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns "host:port".
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

var (
	// ErrCacheMiss is returned when the requested key is absent.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheKeyEmpty is returned for an empty key.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")
)

// Key prefixes for namespacing.
const (
	PrefixDedup    = "dedup:"
	PrefixProgress = "progress:"
)

// NewClient opens and pings a Redis client.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

// Cache is a JSON value cache with TTLs, used for read-side views
// that tolerate slight staleness.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCache creates a cache under the given key prefix.
func NewCache(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = PrefixProgress
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Set stores value as JSON under the prefixed key.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	return c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
}

// Get loads the prefixed key into dest. Returns ErrCacheMiss when the
// key is absent or expired.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("cache: get: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache: unmarshal: %w", err)
	}
	return nil
}

// Delete removes the prefixed key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	return c.client.Del(ctx, c.prefix+key).Err()
}
