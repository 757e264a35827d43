package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

// Hub maintains active WebSocket sessions and fans pushes out to the
// sessions bound to an account.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			client.server.log.Infow("ws_connected", "client", client.id, "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			client.server.log.Infow("ws_disconnected", "client", client.id, "total", total)
		}
	}
}

// hasSessionsFor reports whether any session is bound to the account.
func (h *Hub) hasSessionsFor(accountID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.boundAccount() == accountID {
			return true
		}
	}
	return false
}

// boundAccounts returns the set of accounts with at least one session.
func (h *Hub) boundAccounts() map[string]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]bool)
	for client := range h.clients {
		if id := client.boundAccount(); id != "" {
			out[id] = true
		}
	}
	return out
}

// deliver runs fn over every registered client under the registry lock, so
// a concurrent unregister cannot close a send channel mid-delivery.
// fn must not block; client sends are buffered and drop on overflow.
func (h *Hub) deliver(fn func(*Client)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		fn(client)
	}
}

// Client is one WebSocket session. A session is bound to at most one
// account at a time; commands act on the bound account.
type Client struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	id     string

	// Session state: bound account and the newest snapshot seq delivered.
	// lastSeq makes snapshot delivery monotonic per session: a slow
	// build that finishes after a newer one is dropped, never delivered.
	sessMu    sync.Mutex
	accountID string
	lastSeq   uint64
}

func (c *Client) boundAccount() string {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.accountID
}

// bind points the session at an account and resets snapshot monotonicity.
func (c *Client) bind(accountID string) {
	c.sessMu.Lock()
	c.accountID = accountID
	c.lastSeq = 0
	c.sessMu.Unlock()
}

// push marshals and enqueues a message. A session with a full send buffer
// drops the message rather than blocking the caller.
func (c *Client) push(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.server.log.Warnw("ws_marshal_failed", "client", c.id, "err", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// pushSnapshot delivers a snapshot unless a newer one already went out on
// this session.
func (c *Client) pushSnapshot(snap Snapshot) {
	c.sessMu.Lock()
	if c.accountID != snap.Account.ID || snap.Seq < c.lastSeq {
		c.sessMu.Unlock()
		return
	}
	c.lastSeq = snap.Seq
	c.sessMu.Unlock()
	c.push(snap)
}

// readPump pumps commands from the WebSocket connection to the server
func (c *Client) readPump() {
	defer func() {
		c.server.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Warnw("ws_read_error", "client", c.id, "err", err)
			}
			break
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.push(ErrorPush{Type: "error", Code: "validation_error", Message: "invalid JSON"})
			continue
		}
		c.server.handleCommand(c, cmd)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to current write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket handles WebSocket upgrade and client lifecycle
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}

	client := &Client{
		server: s,
		conn:   conn,
		send:   make(chan []byte, 256),
		id:     conn.RemoteAddr().String(),
	}

	s.hub.register <- client

	// Start read and write pumps in separate goroutines
	go client.writePump()
	go client.readPump()
}
