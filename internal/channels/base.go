// Package channels defines the Channel interface for chat platform integrations.
package channels

import (
	"context"
	"strings"
	"time"

	"github.com/dhvos/dhvos-go/internal/bus"
)

// Channel is the interface that all chat platform integrations must implement.
type Channel interface {
	// Name returns the channel identifier (e.g., "telegram", "webchat").
	Name() string

	// Start connects to the platform and begins listening. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop() error

	// Send delivers an outbound message through this channel.
	Send(msg bus.OutboundMessage) error

	// IsRunning returns whether the channel is active.
	IsRunning() bool
}

// BaseChannel provides shared logic for all channel implementations.
type BaseChannel struct {
	ChannelName string
	Bus         *bus.MessageBus
	AllowFrom   []string
	Running     bool
}

// IsAllowed checks if a sender is permitted to interact with the bot.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.AllowFrom) == 0 {
		return true
	}
	for _, allowed := range b.AllowFrom {
		if allowed == senderID {
			return true
		}
	}
	// Support pipe-separated sender IDs (numeric id + username).
	if strings.Contains(senderID, "|") {
		for _, part := range strings.Split(senderID, "|") {
			if part == "" {
				continue
			}
			for _, allowed := range b.AllowFrom {
				if allowed == part {
					return true
				}
			}
		}
	}
	return false
}

// HandleMessage checks permissions and publishes to the bus. messageID must be
// strictly increasing per chat; the engine drops anything stale or duplicate.
func (b *BaseChannel) HandleMessage(senderID, chatID string, messageID int64, content string) {
	if !b.IsAllowed(senderID) {
		return
	}
	b.Bus.PublishInbound(bus.InboundMessage{
		Channel:   b.ChannelName,
		SenderID:  senderID,
		ChatID:    chatID,
		MessageID: messageID,
		Content:   content,
		Timestamp: time.Now(),
	})
}
