// Package livereload pushes compiled-entry notifications to browsers over a
// WebSocket so pages can reload when a template output changes.
package livereload

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/mixpaths/internal/entry"
	"github.com/conneroisu/mixpaths/internal/logging"
)

const (
	// MessageTypeEntryCompiled is sent once per entry written by a pass.
	MessageTypeEntryCompiled = "entry-compiled"

	writeWait    = 10 * time.Second
	pingPeriod   = 54 * time.Second
	sendBuffer   = 16
	queueBuffer  = 256
	maxReadBytes = 512
)

// Message is the JSON payload broadcast to clients.
type Message struct {
	Type      string    `json:"type"`
	PublicID  string    `json:"public_id"`
	Dest      string    `json:"dest"`
	Size      int       `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and fans messages out to them. Clients are
// admitted by ServeHTTP under the mutex; once Run has disconnected everyone
// no client is admitted again.
type Hub struct {
	clients map[*websocket.Conn]*client
	closed  bool
	mutex   sync.RWMutex

	broadcast  chan []byte
	unregister chan *websocket.Conn

	originPatterns []string
	logger         logging.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// HubOptions configures a Hub.
type HubOptions struct {
	// OriginPatterns lists the host patterns allowed to connect from another
	// origin. Same-origin requests are always accepted.
	OriginPatterns []string
	Logger         logging.Logger
}

// NewHub creates a hub. Nothing is delivered until Run is called.
func NewHub(opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Hub{
		clients:        make(map[*websocket.Conn]*client),
		broadcast:      make(chan []byte, queueBuffer),
		unregister:     make(chan *websocket.Conn, 32),
		originPatterns: opts.OriginPatterns,
		logger:         logger.WithComponent("livereload"),
		done:           make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done or Close is
// called. Remaining clients are disconnected on return.
func (h *Hub) Run(ctx context.Context) error {
	defer h.disconnectAll()
	defer h.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
			return nil
		case conn := <-h.unregister:
			h.remove(conn, websocket.StatusNormalClosure, "")
		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

// Close stops Run. It is safe to call more than once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
	})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.clients)
}

// Broadcast queues msg for every connected client. When the queue is full
// the message is dropped.
func (h *Hub) Broadcast(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.logger.Warn(context.Background(), nil, "Broadcast queue full, dropping message", "public_id", msg.PublicID)
	}

	return nil
}

// NotifyCompiled broadcasts an entry-compiled message. Its signature matches
// the compiler's per-entry callback.
func (h *Hub) NotifyCompiled(e entry.Entry, output string) {
	err := h.Broadcast(Message{
		Type:      MessageTypeEntryCompiled,
		PublicID:  e.PublicID,
		Dest:      e.Dest,
		Size:      len(output),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error(context.Background(), err, "Failed to encode message", "public_id", e.PublicID)
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxReadBytes)

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.admit(c) {
		_ = conn.Close(websocket.StatusServiceRestart, "server shutting down")
		return
	}

	go h.writePump(c)
}

// admit adds c to the clients unless the hub has shut down.
func (h *Hub) admit(c *client) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	select {
	case <-h.done:
		return false
	default:
	}
	if h.closed {
		return false
	}

	h.clients[c.conn] = c
	h.logger.Debug(context.Background(), "Client connected", "clients", len(h.clients))

	return true
}

// writePump delivers queued messages and pings. Incoming frames are read and
// discarded by CloseRead so close frames are noticed.
func (h *Hub) writePump(c *client) {
	ctx := c.conn.CloseRead(context.Background())

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	defer func() {
		select {
		case h.unregister <- c.conn:
		case <-h.done:
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				h.logger.Debug(ctx, "WebSocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) fanOut(message []byte) {
	h.mutex.RLock()
	var slow []*websocket.Conn
	for conn, c := range h.clients {
		select {
		case c.send <- message:
		default:
			slow = append(slow, conn)
		}
	}
	h.mutex.RUnlock()

	for _, conn := range slow {
		h.remove(conn, websocket.StatusPolicyViolation, "client too slow")
	}
}

func (h *Hub) remove(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	h.mutex.Lock()
	c, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(c.send)
	}
	total := len(h.clients)
	h.mutex.Unlock()

	if ok {
		_ = conn.Close(code, reason)
		h.logger.Debug(context.Background(), "Client disconnected", "clients", total)
	}
}

func (h *Hub) disconnectAll() {
	h.mutex.Lock()
	clients := h.clients
	h.clients = make(map[*websocket.Conn]*client)
	h.closed = true
	h.mutex.Unlock()

	for conn, c := range clients {
		close(c.send)
		_ = conn.Close(websocket.StatusGoingAway, "server shutdown")
	}
}
