// Package redis provides the cache connection used for fallback memory.
//
// Graceful fallback: if Redis is unavailable, operations silently return
// zero values instead of blocking message processing.
package redis

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes.
const (
	KeyAnswer = "ans:" // cached AI-generated answers by question hash
)

// Config holds Redis connection settings.
type Config struct {
	URL      string // redis://host:port
	Password string
	DB       int
}

var (
	client    *redis.Client
	connected bool
	mu        sync.RWMutex
)

// Init initializes the Redis connection. Returns true if connected.
func Init(cfg Config) bool {
	if cfg.URL == "" {
		log.Println("[Redis] URL not configured, skipping init")
		return false
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Printf("[Redis] Invalid URL: %v", err)
		return false
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	c := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		log.Printf("[Redis] Connection failed: %v", err)
		return false
	}

	mu.Lock()
	client = c
	connected = true
	mu.Unlock()

	log.Println("[Redis] Connected")
	return true
}

// Close closes the Redis connection.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if client != nil {
		client.Close()
		client = nil
		connected = false
		log.Println("[Redis] Connection closed")
	}
}

// Client returns the Redis client. Returns nil if not available.
func Client() *redis.Client {
	mu.RLock()
	defer mu.RUnlock()
	if connected {
		return client
	}
	return nil
}

// IsAvailable checks if Redis is connected.
func IsAvailable() bool {
	mu.RLock()
	defer mu.RUnlock()
	return connected && client != nil
}

// CacheGet reads a string value. Returns "" if unavailable or missing.
func CacheGet(ctx context.Context, key string) string {
	c := Client()
	if c == nil {
		return ""
	}
	val, err := c.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[Redis] get failed (%s): %v", key, err)
		}
		return ""
	}
	return val
}

// CacheSet writes a string value with TTL. Returns false on failure.
func CacheSet(ctx context.Context, key, value string, ttl time.Duration) bool {
	c := Client()
	if c == nil {
		return false
	}
	if err := c.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("[Redis] set failed (%s): %v", key, err)
		return false
	}
	return true
}

// AnswerKey returns the cache key for a question hash.
func AnswerKey(hash string) string {
	return KeyAnswer + hash
}
