// Package engine implements the response router: for each inbound message it
// decides between a knowledge base answer, a generative fallback, or silence,
// while the tracker keeps per-chat processing exclusive and rate limited.
package engine

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dhvos/dhvos-go/internal/bus"
	"github.com/dhvos/dhvos-go/internal/fallback"
	"github.com/dhvos/dhvos-go/internal/match"
	"github.com/dhvos/dhvos-go/internal/session"
	"github.com/dhvos/dhvos-go/internal/track"
	"github.com/dhvos/dhvos-go/internal/unknown"
)

// User-visible replies for the non-answer outcomes.
const (
	ReplyThrottled = "⚠️ You're sending messages a little too fast. Give me a moment and try again."
	ReplyApology   = "🤔 Hmm... I couldn't find an answer for that right now.\n\nYour question has been logged, and the knowledge base will be updated soon. In the meantime, try rephrasing or exploring other topics. 🔍"
	ReplyDeclined  = "I can't help with that one. Try asking me something else about the community!"
)

// Config holds engine behavior settings.
type Config struct {
	FallbackTimeout time.Duration // per-attempt deadline for the AI fallback
	RetryCount      int           // total fallback attempts on transient failure
	RetryBaseDelay  time.Duration // first backoff delay between attempts (default 500ms)
	HistorySize     int           // conversation turns passed as fallback context
}

// Deps are the engine's collaborators. Matcher, Store, Provider, Tracker and
// Bus are required; Memory, Sessions and Unknown are optional.
type Deps struct {
	Store    match.Store
	Matcher  *match.Matcher
	Provider fallback.Provider
	Tracker  *track.Tracker
	Bus      *bus.MessageBus

	Memory   *fallback.Memory
	Sessions *session.Manager
	Unknown  *unknown.Logger
}

// Stats are the engine's monotonic counters.
type Stats struct {
	Received        atomic.Int64
	DroppedInFlight atomic.Int64
	DroppedStale    atomic.Int64
	Throttled       atomic.Int64
	AnsweredKB      atomic.Int64
	AnsweredMemory  atomic.Int64
	AnsweredAI      atomic.Int64
	Failed          atomic.Int64
}

// Snapshot returns the counters as a map for the health endpoint.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"received":        s.Received.Load(),
		"droppedInFlight": s.DroppedInFlight.Load(),
		"droppedStale":    s.DroppedStale.Load(),
		"throttled":       s.Throttled.Load(),
		"answeredKB":      s.AnsweredKB.Load(),
		"answeredMemory":  s.AnsweredMemory.Load(),
		"answeredAI":      s.AnsweredAI.Load(),
		"failed":          s.Failed.Load(),
	}
}

// Engine is the response router.
type Engine struct {
	cfg   Config
	deps  Deps
	stats Stats
}

// New creates an engine.
func New(cfg Config, deps Deps) *Engine {
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = 30 * time.Second
	}
	if cfg.RetryCount < 1 {
		cfg.RetryCount = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 10
	}
	return &Engine{cfg: cfg, deps: deps}
}

// Stats exposes the engine counters.
func (e *Engine) Stats() *Stats { return &e.stats }

// Run consumes inbound messages until ctx is cancelled. Messages are handled
// concurrently; per-chat exclusivity comes from the tracker, so messages from
// different chats interleave freely while one chat never overlaps itself.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.deps.Bus.Inbound:
			go e.HandleMessage(ctx, msg)
		}
	}
}

// HandleMessage routes one inbound message to completion. It sends at most
// one outbound reply, and pairs every accepted message with exactly one
// tracker Begin/End — on every exit path, panics included.
func (e *Engine) HandleMessage(ctx context.Context, msg bus.InboundMessage) {
	e.stats.Received.Add(1)
	chatKey := msg.ChatKey()

	if err := e.deps.Tracker.Begin(chatKey, msg.MessageID); err != nil {
		switch {
		case errors.Is(err, track.ErrAlreadyInFlight):
			e.stats.DroppedInFlight.Add(1)
			log.Printf("[Engine] Drop %s#%d: already in flight", chatKey, msg.MessageID)
		case errors.Is(err, track.ErrStaleMessage):
			e.stats.DroppedStale.Add(1)
			log.Printf("[Engine] Drop %s#%d: stale message id", chatKey, msg.MessageID)
		default:
			log.Printf("[Engine] Drop %s#%d: %v", chatKey, msg.MessageID, err)
		}
		return
	}

	processed := false
	defer func() {
		if r := recover(); r != nil {
			e.stats.Failed.Add(1)
			log.Printf("[Engine] Panic handling %s#%d: %v", chatKey, msg.MessageID, r)
		}
		e.deps.Tracker.End(chatKey, msg.MessageID, processed)
	}()

	if allowed, notify := e.deps.Tracker.CheckRate(chatKey); !allowed {
		processed = true
		e.stats.Throttled.Add(1)
		if notify {
			e.reply(msg, ReplyThrottled)
		}
		return
	}

	result := e.deps.Matcher.Match(msg, e.deps.Store)
	if result.Matched() {
		processed = true
		e.stats.AnsweredKB.Add(1)
		log.Printf("[Engine] %s#%d answered from KB (%s, score %.2f)",
			chatKey, msg.MessageID, result.Matcher, result.Score)
		e.remember(chatKey, msg.Content, result.Entry.Answer)
		e.reply(msg, result.Entry.Answer)
		return
	}

	// Previously generated answers short-circuit the model call.
	if e.deps.Memory != nil {
		if cached := e.deps.Memory.Get(ctx, msg.Content); cached != "" {
			processed = true
			e.stats.AnsweredMemory.Add(1)
			e.remember(chatKey, msg.Content, cached)
			e.reply(msg, cached)
			return
		}
	}

	reply, err := e.delegate(ctx, chatKey, msg.Content)
	processed = true
	if err != nil {
		e.stats.Failed.Add(1)

		var cpe *fallback.ContentPolicyError
		if errors.As(err, &cpe) {
			log.Printf("[Engine] %s#%d declined by content policy: %s", chatKey, msg.MessageID, cpe.Reason)
			e.reply(msg, ReplyDeclined)
			return
		}

		log.Printf("[Engine] %s#%d fallback exhausted: %v", chatKey, msg.MessageID, err)
		if e.deps.Unknown != nil {
			if lerr := e.deps.Unknown.Log(chatKey, msg.SenderID, msg.Content, "fallback"); lerr != nil {
				log.Printf("[Engine] Unknown-question log failed: %v", lerr)
			}
		}
		e.reply(msg, ReplyApology)
		return
	}

	e.stats.AnsweredAI.Add(1)
	if e.deps.Memory != nil {
		e.deps.Memory.Put(ctx, msg.Content, reply)
	}
	e.remember(chatKey, msg.Content, reply)
	e.reply(msg, reply)
}

// delegate calls the AI fallback with bounded per-attempt timeouts and
// exponential backoff between transient failures. Content-policy refusals
// stop retrying immediately.
func (e *Engine) delegate(ctx context.Context, chatKey, question string) (string, error) {
	var history []fallback.Message
	if e.deps.Sessions != nil {
		for _, m := range e.deps.Sessions.GetOrCreate(chatKey).History(e.cfg.HistorySize) {
			history = append(history, fallback.Message{Role: m.Role, Content: m.Content})
		}
	}

	attempt := 0
	operation := func() (string, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.FallbackTimeout)
		defer cancel()

		reply, err := e.deps.Provider.Generate(attemptCtx, question, history)
		if err != nil {
			var cpe *fallback.ContentPolicyError
			if errors.As(err, &cpe) {
				return "", backoff.Permanent(err)
			}
			log.Printf("[Engine] Fallback attempt %d/%d failed: %v", attempt, e.cfg.RetryCount, err)
			return "", err
		}
		return reply, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.RetryBaseDelay
	bo.MaxElapsedTime = 0

	return backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(e.cfg.RetryCount-1)), ctx))
}

// remember records the exchange in the chat's history. Safe because the
// tracker guarantees one in-flight message per chat.
func (e *Engine) remember(chatKey, question, answer string) {
	if e.deps.Sessions == nil {
		return
	}
	s := e.deps.Sessions.GetOrCreate(chatKey)
	s.Add("user", question)
	s.Add("assistant", answer)
	if err := e.deps.Sessions.Save(s); err != nil {
		log.Printf("[Engine] Session save failed for %s: %v", chatKey, err)
	}
}

// reply publishes the single outbound message for this inbound message.
func (e *Engine) reply(msg bus.InboundMessage, content string) {
	e.deps.Bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
		ReplyTo: msg.MessageID,
	})
}
