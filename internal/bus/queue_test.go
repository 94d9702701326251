package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMessageBus(t *testing.T) {
	b := NewMessageBus()
	assert.NotNil(t, b)
	assert.Equal(t, 0, b.InboundSize())
	assert.Equal(t, 0, b.OutboundSize())
}

func TestMessageBus_PublishConsumeInbound(t *testing.T) {
	b := NewMessageBus()
	msg := InboundMessage{Channel: "telegram", ChatID: "42", MessageID: 7, Content: "hello"}

	b.PublishInbound(msg)
	assert.Equal(t, 1, b.InboundSize())

	received := <-b.Inbound
	assert.Equal(t, "hello", received.Content)
	assert.Equal(t, int64(7), received.MessageID)
	assert.Equal(t, "telegram:42", received.ChatKey())
}

func TestMessageBus_SubscribeAndDispatch(t *testing.T) {
	b := NewMessageBus()

	var received []OutboundMessage
	var mu sync.Mutex

	b.Subscribe("telegram", func(msg OutboundMessage) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.DispatchOutbound(ctx)

	b.PublishOutbound(OutboundMessage{Channel: "telegram", ChatID: "42", Content: "reply"})

	// Wait for dispatch
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, 1)
	assert.Equal(t, "reply", received[0].Content)
}

func TestMessageBus_SubscribeDoesNotReceiveOtherChannels(t *testing.T) {
	b := NewMessageBus()

	var received []OutboundMessage
	var mu sync.Mutex

	b.Subscribe("telegram", func(msg OutboundMessage) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.DispatchOutbound(ctx)

	b.PublishOutbound(OutboundMessage{Channel: "webchat", Content: "wrong"})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, received)
}
