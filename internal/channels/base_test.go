package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dhvos/dhvos-go/internal/bus"
)

func TestBaseChannel_IsAllowed_EmptyList(t *testing.T) {
	b := &BaseChannel{AllowFrom: []string{}}
	assert.True(t, b.IsAllowed("anyone"))
}

func TestBaseChannel_IsAllowed_InList(t *testing.T) {
	b := &BaseChannel{AllowFrom: []string{"user1", "user2"}}
	assert.True(t, b.IsAllowed("user1"))
	assert.True(t, b.IsAllowed("user2"))
	assert.False(t, b.IsAllowed("user3"))
}

func TestBaseChannel_IsAllowed_PipeSeparated(t *testing.T) {
	b := &BaseChannel{AllowFrom: []string{"user1"}}
	assert.True(t, b.IsAllowed("user1|extra"))
	assert.False(t, b.IsAllowed("user3|user4"))
}

func TestBaseChannel_HandleMessage_Allowed(t *testing.T) {
	mb := bus.NewMessageBus()
	b := &BaseChannel{
		ChannelName: "test",
		Bus:         mb,
		AllowFrom:   []string{},
	}

	b.HandleMessage("user1", "chat1", 7, "hello")
	assert.Equal(t, 1, mb.InboundSize())

	msg := <-mb.Inbound
	assert.Equal(t, "test", msg.Channel)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, int64(7), msg.MessageID)
	assert.Equal(t, "test:chat1", msg.ChatKey())
	assert.False(t, msg.Timestamp.IsZero())
}

func TestBaseChannel_HandleMessage_Denied(t *testing.T) {
	mb := bus.NewMessageBus()
	b := &BaseChannel{
		ChannelName: "test",
		Bus:         mb,
		AllowFrom:   []string{"allowed_user"},
	}

	b.HandleMessage("blocked_user", "chat1", 1, "hello")
	assert.Equal(t, 0, mb.InboundSize())
}
