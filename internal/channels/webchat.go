package channels

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dhvos/dhvos-go/internal/bus"
)

// webchatFrame is the wire format in both directions. Clients send content;
// replies carry the id of the message being answered.
type webchatFrame struct {
	Content string `json:"content"`
	ReplyTo int64  `json:"replyTo,omitempty"`
}

// webchatClient is one websocket connection. Writes are serialized because
// gorilla/websocket allows a single concurrent writer per connection.
type webchatClient struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	nextMsg int64
}

func (c *webchatClient) write(frame webchatFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(frame)
}

// WebchatChannel serves a websocket endpoint at /ws. Each connection is its
// own chat; the channel assigns strictly increasing message ids per
// connection, so the engine's ordering guarantees hold without client help.
type WebchatChannel struct {
	BaseChannel
	listen string

	upgrader websocket.Upgrader
	server   *http.Server

	mu       sync.Mutex
	clients  map[string]*webchatClient
	nextConn atomic.Int64
}

// NewWebchatChannel creates a WebchatChannel listening on addr.
func NewWebchatChannel(addr string, allowFrom []string, msgBus *bus.MessageBus) *WebchatChannel {
	return &WebchatChannel{
		BaseChannel: BaseChannel{
			ChannelName: "webchat",
			Bus:         msgBus,
			AllowFrom:   allowFrom,
		},
		listen: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*webchatClient),
	}
}

func (w *WebchatChannel) Name() string    { return "webchat" }
func (w *WebchatChannel) IsRunning() bool { return w.Running }

// Start serves websocket connections until ctx is cancelled.
func (w *WebchatChannel) Start(ctx context.Context) error {
	if w.listen == "" {
		return fmt.Errorf("webchat listen address not configured")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", w.handleWS)

	ln, err := net.Listen("tcp", w.listen)
	if err != nil {
		return fmt.Errorf("webchat listen: %w", err)
	}
	w.server = &http.Server{Handler: mux}
	w.Running = true
	log.Printf("[Webchat] Listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	if err := w.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts down the websocket server and drops all connections.
func (w *WebchatChannel) Stop() error {
	w.Running = false
	if w.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		w.server.Shutdown(ctx)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for id, c := range w.clients {
		c.conn.Close()
		delete(w.clients, id)
	}
	return nil
}

// Send delivers a reply to the connection identified by ChatID.
func (w *WebchatChannel) Send(msg bus.OutboundMessage) error {
	w.mu.Lock()
	c := w.clients[msg.ChatID]
	w.mu.Unlock()
	if c == nil {
		return fmt.Errorf("webchat client %s not connected", msg.ChatID)
	}
	return c.write(webchatFrame{Content: msg.Content, ReplyTo: msg.ReplyTo})
}

func (w *WebchatChannel) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("[Webchat] Upgrade failed: %v", err)
		return
	}

	chatID := fmt.Sprintf("web-%d", w.nextConn.Add(1))
	client := &webchatClient{conn: conn}

	w.mu.Lock()
	w.clients[chatID] = client
	w.mu.Unlock()
	log.Printf("[Webchat] Client %s connected from %s", chatID, r.RemoteAddr)

	defer func() {
		w.mu.Lock()
		delete(w.clients, chatID)
		w.mu.Unlock()
		conn.Close()
		log.Printf("[Webchat] Client %s disconnected", chatID)
	}()

	for {
		var frame webchatFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Content == "" {
			continue
		}
		client.nextMsg++
		w.HandleMessage(chatID, chatID, client.nextMsg, frame.Content)
	}
}
