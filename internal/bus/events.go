// Package bus provides the async message bus for decoupled channel-engine communication.
package bus

import "time"

// InboundMessage is received from a chat channel. Channel adapters map the
// platform's raw payload into this type before anything else sees it.
type InboundMessage struct {
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chat_id"`
	MessageID int64     `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatKey returns the unique key identifying the conversation.
func (m *InboundMessage) ChatKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is sent to a chat channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	ReplyTo int64  `json:"reply_to,omitempty"`
}
