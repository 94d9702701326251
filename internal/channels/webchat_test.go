package channels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhvos/dhvos-go/internal/bus"
)

func dialWebchat(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebchatChannel_Interface(t *testing.T) {
	ch := NewWebchatChannel("127.0.0.1:0", nil, bus.NewMessageBus())
	var _ Channel = ch
	assert.Equal(t, "webchat", ch.Name())
	assert.False(t, ch.IsRunning())
}

func TestWebchatChannel_StartNoAddr(t *testing.T) {
	ch := NewWebchatChannel("", nil, bus.NewMessageBus())
	assert.Error(t, ch.Start(context.Background()))
}

func TestWebchatChannel_RoundTrip(t *testing.T) {
	mb := bus.NewMessageBus()
	ch := NewWebchatChannel("127.0.0.1:0", nil, mb)
	srv := httptest.NewServer(http.HandlerFunc(ch.handleWS))
	defer srv.Close()

	conn := dialWebchat(t, srv)
	require.NoError(t, conn.WriteJSON(webchatFrame{Content: "hello"}))

	var msg bus.InboundMessage
	select {
	case msg = <-mb.Inbound:
	case <-time.After(2 * time.Second):
		t.Fatal("no inbound message")
	}
	assert.Equal(t, "webchat", msg.Channel)
	assert.Equal(t, "web-1", msg.ChatID)
	assert.Equal(t, int64(1), msg.MessageID)
	assert.Equal(t, "hello", msg.Content)

	require.NoError(t, ch.Send(bus.OutboundMessage{
		Channel: "webchat",
		ChatID:  msg.ChatID,
		Content: "hi there",
		ReplyTo: msg.MessageID,
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame webchatFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "hi there", frame.Content)
	assert.Equal(t, int64(1), frame.ReplyTo)
}

func TestWebchatChannel_MessageIDsIncrease(t *testing.T) {
	mb := bus.NewMessageBus()
	ch := NewWebchatChannel("127.0.0.1:0", nil, mb)
	srv := httptest.NewServer(http.HandlerFunc(ch.handleWS))
	defer srv.Close()

	conn := dialWebchat(t, srv)
	require.NoError(t, conn.WriteJSON(webchatFrame{Content: "first"}))
	require.NoError(t, conn.WriteJSON(webchatFrame{Content: "second"}))

	first := <-mb.Inbound
	second := <-mb.Inbound
	assert.Equal(t, int64(1), first.MessageID)
	assert.Equal(t, int64(2), second.MessageID)
	assert.Equal(t, first.ChatID, second.ChatID)
}

func TestWebchatChannel_EmptyContentIgnored(t *testing.T) {
	mb := bus.NewMessageBus()
	ch := NewWebchatChannel("127.0.0.1:0", nil, mb)
	srv := httptest.NewServer(http.HandlerFunc(ch.handleWS))
	defer srv.Close()

	conn := dialWebchat(t, srv)
	require.NoError(t, conn.WriteJSON(webchatFrame{Content: ""}))
	require.NoError(t, conn.WriteJSON(webchatFrame{Content: "real"}))

	msg := <-mb.Inbound
	assert.Equal(t, "real", msg.Content)
	assert.Equal(t, int64(1), msg.MessageID)
}

func TestWebchatChannel_SendUnknownClient(t *testing.T) {
	ch := NewWebchatChannel("127.0.0.1:0", nil, bus.NewMessageBus())
	err := ch.Send(bus.OutboundMessage{ChatID: "web-999", Content: "hi"})
	assert.Error(t, err)
}

func TestWebchatChannel_StartAndShutdown(t *testing.T) {
	ch := NewWebchatChannel("127.0.0.1:0", nil, bus.NewMessageBus())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ch.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
