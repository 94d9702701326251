// Package track maintains per-chat conversation state: in-flight exclusion,
// processed message ordering, and sliding-window rate limiting.
package track

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrAlreadyInFlight means a message for this chat is being processed.
	ErrAlreadyInFlight = errors.New("chat already in flight")

	// ErrStaleMessage means the message id is not newer than the last
	// processed id for this chat (duplicate or out of order).
	ErrStaleMessage = errors.New("stale or duplicate message id")
)

// chatState is the per-chat record. Created on first message, evicted after
// the idle timeout.
type chatState struct {
	mu               sync.Mutex
	inFlight         bool
	evicted          bool // set by the sweeper; holders must re-fetch
	lastProcessed    int64
	recent           []time.Time // message arrivals inside the rate window
	throttleNotified time.Time   // last "slow down" notice
	lastActive       time.Time
}

// Config holds Tracker settings.
type Config struct {
	Window      time.Duration // sliding rate-limit window
	MaxMessages int           // max messages per chat per window
	IdleTimeout time.Duration // evict chat state after this much inactivity (default 10m)
	SweepEvery  time.Duration // eviction sweep interval (default 1m)
}

// Tracker tracks conversation state for all chats.
type Tracker struct {
	mu    sync.Mutex
	chats map[string]*chatState

	window      time.Duration
	maxMessages int
	idleTimeout time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTracker creates a tracker and starts its idle-eviction sweeper.
func NewTracker(cfg Config) *Tracker {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 10
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = time.Minute
	}

	t := &Tracker{
		chats:       make(map[string]*chatState),
		window:      cfg.Window,
		maxMessages: cfg.MaxMessages,
		idleTimeout: cfg.IdleTimeout,
		stopCh:      make(chan struct{}),
	}
	go t.sweep(cfg.SweepEvery)
	return t
}

// Begin acquires the chat for processing messageID. It is atomic with respect
// to concurrent messages from the same chat: at most one caller holds a chat
// at any time. Stale and duplicate message ids are rejected here too, so a
// rejected message never reaches matching.
func (t *Tracker) Begin(chatKey string, messageID int64) error {
	c := t.acquire(chatKey)
	defer c.mu.Unlock()

	if c.inFlight {
		return ErrAlreadyInFlight
	}
	if messageID <= c.lastProcessed {
		return ErrStaleMessage
	}
	c.inFlight = true
	c.lastActive = time.Now()
	return nil
}

// End releases the chat acquired by Begin. When processed is true the message
// id is recorded so later duplicates are dropped.
func (t *Tracker) End(chatKey string, messageID int64, processed bool) {
	c := t.acquire(chatKey)
	defer c.mu.Unlock()

	c.inFlight = false
	if processed && messageID > c.lastProcessed {
		c.lastProcessed = messageID
	}
	c.lastActive = time.Now()
}

// CheckRate records one message arrival and reports whether the chat is
// within its rate limit. notify is true at most once per window: the first
// throttled message of a window gets the notice, the rest stay silent.
func (t *Tracker) CheckRate(chatKey string) (allowed, notify bool) {
	c := t.acquire(chatKey)
	defer c.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-t.window)

	keep := c.recent[:0]
	for _, ts := range c.recent {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	c.recent = append(keep, now)
	c.lastActive = now

	if len(c.recent) <= t.maxMessages {
		return true, false
	}
	if c.throttleNotified.Before(cutoff) {
		c.throttleNotified = now
		return false, true
	}
	return false, false
}

// LastProcessed returns the last processed message id for a chat (0 if none).
func (t *Tracker) LastProcessed(chatKey string) int64 {
	c := t.acquire(chatKey)
	defer c.mu.Unlock()
	return c.lastProcessed
}

// ActiveCount returns the number of chats currently in flight.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, c := range t.chats {
		c.mu.Lock()
		if c.inFlight {
			n++
		}
		c.mu.Unlock()
	}
	return n
}

// TrackedChats returns the number of chats with live state.
func (t *Tracker) TrackedChats() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chats)
}

// Stop shuts down the eviction sweeper.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// get returns the chat state, creating it on first message.
func (t *Tracker) get(chatKey string) *chatState {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.chats[chatKey]
	if !ok {
		c = &chatState{lastActive: time.Now()}
		t.chats[chatKey] = c
	}
	return c
}

// acquire returns the chat state with its lock held. A state the sweeper
// evicted between the map lookup and the lock is dead; re-fetch so that all
// callers converge on the one live state per chat.
func (t *Tracker) acquire(chatKey string) *chatState {
	for {
		c := t.get(chatKey)
		c.mu.Lock()
		if !c.evicted {
			return c
		}
		c.mu.Unlock()
	}
}

// sweep evicts idle chat state periodically.
func (t *Tracker) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			threshold := time.Now().Add(-t.idleTimeout)
			t.mu.Lock()
			for key, c := range t.chats {
				c.mu.Lock()
				if !c.inFlight && c.lastActive.Before(threshold) {
					c.evicted = true
					delete(t.chats, key)
				}
				c.mu.Unlock()
			}
			t.mu.Unlock()
		}
	}
}
