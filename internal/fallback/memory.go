package fallback

import (
	"context"
	"crypto/md5"
	"fmt"
	"log"
	"time"

	"github.com/dhvos/dhvos-go/internal/redis"
	"github.com/dhvos/dhvos-go/internal/text"
)

// Memory caches generated answers keyed by normalized question, so a
// repeated unknown question is answered without another model call.
// Backed by Redis with graceful degradation: with no connection every
// lookup misses and every save is dropped.
type Memory struct {
	ttl time.Duration
}

// NewMemory creates an answer cache. ttl 0 means entries never expire.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl}
}

// Get returns a previously cached answer, or "" on miss.
func (m *Memory) Get(ctx context.Context, question string) string {
	key := questionKey(question)
	if key == "" {
		return ""
	}
	return redis.CacheGet(ctx, key)
}

// Put stores a generated answer for future reuse.
func (m *Memory) Put(ctx context.Context, question, answer string) {
	key := questionKey(question)
	if key == "" || answer == "" {
		return
	}
	if redis.CacheSet(ctx, key, answer, m.ttl) {
		log.Printf("[Memory] Cached answer for %.40q", question)
	}
}

// questionKey hashes the normalized question into a short cache key.
func questionKey(question string) string {
	nq := text.Normalize(question)
	if nq == "" {
		return ""
	}
	h := md5.Sum([]byte(nq))
	return redis.AnswerKey(fmt.Sprintf("%x", h[:8]))
}
