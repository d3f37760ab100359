package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/rollcall/internal/ir"
	"github.com/roach88/rollcall/internal/notify"
)

const (
	hubSendBuffer   = 64
	hubWriteTimeout = 5 * time.Second
	hubPongTimeout  = 60 * time.Second
	hubPingInterval = 50 * time.Second
)

// Hub broadcasts status events to websocket clients such as a browser
// overlay. Clients only receive; anything they send is discarded. A client
// that falls behind by more than its send buffer is disconnected.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the logger.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithCheckOrigin overrides the origin check. The default accepts every
// origin, since overlays are served from local files.
func WithCheckOrigin(fn func(*http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  slog.Default(),
		clients: make(map[*hubClient]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := &hubClient{conn: conn, send: make(chan []byte, hubSendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "remote_addr", r.RemoteAddr, "clients", count)

	go h.writePump(c)
	go h.readPump(c)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SendControlMessage implements notify.Sink.
func (h *Hub) SendControlMessage(_ context.Context, msg string) error {
	return h.broadcast(map[string]any{"type": "control", "message": msg})
}

// SendStatusEvent implements notify.Sink.
func (h *Hub) SendStatusEvent(_ context.Context, ev notify.StatusEvent) error {
	m := ev.CanonicalMap()
	m["type"] = "status"
	return h.broadcast(m)
}

func (h *Hub) broadcast(m map[string]any) error {
	data, err := ir.MarshalCanonical(m)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.removeLocked(c)
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("dropped %d slow websocket clients", dropped)
	}
	return nil
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// removeLocked unregisters c. Closing send stops the write pump, which
// closes the connection and with it the read pump.
func (h *Hub) removeLocked(c *hubClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) writePump(c *hubClient) {
	defer h.wg.Done()
	ticker := time.NewTicker(hubPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (h *Hub) readPump(c *hubClient) {
	defer h.wg.Done()
	defer h.remove(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
