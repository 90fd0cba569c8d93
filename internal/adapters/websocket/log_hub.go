// Package websocket streams the bot's own log output to operators over /ws/logs
package websocket

import (
	"bytes"
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// LogHub fans log lines out to connected operator consoles.
// It implements io.Writer so it can sit behind the slog handler next to stdout.
// Writes never block: when the queue is full the line is dropped for the console only.
type LogHub struct {
	clients map[*Client]struct{}

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// Last lines, replayed to a console when it connects
	backlog     [][]byte
	backlogNext int
	backlogFull bool

	mu sync.RWMutex

	token    string
	upgrader websocket.Upgrader
}

// Client is one connected console
type Client struct {
	hub  *LogHub
	conn *websocket.Conn
	send chan []byte
}

const (
	broadcastBufferSize = 256
	clientBufferSize    = 64
	backlogSize         = 100

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// NewLogHub creates a hub guarded by the admin token. An empty token
// rejects every connection.
func NewLogHub(token string) *LogHub {
	return &LogHub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		backlog:    make([][]byte, backlogSize),
		token:      token,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Consoles may be served from anywhere; the token is the gate
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run owns the client set until ctx is cancelled, then closes every console
func (h *LogHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			for _, line := range h.snapshotLocked() {
				select {
				case client.send <- line:
				default:
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			slog.Debug("Log console connected", "consoles", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			slog.Debug("Log console disconnected", "consoles", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			h.remember(message)
			for client := range h.clients {
				// A slow console misses lines instead of stalling the hub
				select {
				case client.send <- message:
				default:
				}
			}
			h.mu.Unlock()
		}
	}
}

// Write queues one log line for broadcast. It always reports success.
func (h *LogHub) Write(p []byte) (int, error) {
	msg := bytes.TrimRight(bytes.Clone(p), "\n\r")
	if len(msg) == 0 {
		return len(p), nil
	}

	select {
	case h.broadcast <- msg:
	default:
	}
	return len(p), nil
}

// ServeWS upgrades GET /ws/logs?token=... (or Authorization: Bearer ...)
func (h *LogHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		slog.Warn("Unauthorized log console attempt", "remote_addr", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientBufferSize),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of connected consoles
func (h *LogHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *LogHub) authorized(r *http.Request) bool {
	if h.token == "" {
		return false
	}
	got := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		got = strings.TrimPrefix(auth, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

// remember stores a line in the ring; callers hold mu
func (h *LogHub) remember(line []byte) {
	h.backlog[h.backlogNext] = line
	h.backlogNext = (h.backlogNext + 1) % len(h.backlog)
	if h.backlogNext == 0 {
		h.backlogFull = true
	}
}

// snapshotLocked returns the backlog oldest first; callers hold mu
func (h *LogHub) snapshotLocked() [][]byte {
	if !h.backlogFull {
		return append([][]byte(nil), h.backlog[:h.backlogNext]...)
	}
	out := make([][]byte, 0, len(h.backlog))
	out = append(out, h.backlog[h.backlogNext:]...)
	return append(out, h.backlog[:h.backlogNext]...)
}

// readPump only drains control frames so pongs keep the deadline moving
func (c *Client) readPump() {
	defer c.detach()

	c.conn.SetReadLimit(maxMessageSize)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			slog.Debug("Log console read error", "error", err)
		}
		return
	}
}

// writePump forwards queued lines, one frame per burst, and pings on idle
func (c *Client) writePump() {
	keepalive := time.NewTicker(pingPeriod)
	defer keepalive.Stop()
	defer c.conn.Close()

	for {
		select {
		case line, open := <-c.send:
			if !open {
				c.write(websocket.CloseMessage, nil)
				return
			}
			if err := c.write(websocket.TextMessage, c.drain(line)); err != nil {
				return
			}

		case <-keepalive.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain joins the first line with whatever is already queued
func (c *Client) drain(first []byte) []byte {
	var frame bytes.Buffer
	frame.Write(first)
	for pending := len(c.send); pending > 0; pending-- {
		next, open := <-c.send
		if !open {
			break
		}
		frame.WriteByte('\n')
		frame.Write(next)
	}
	return frame.Bytes()
}

func (c *Client) write(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}

func (c *Client) detach() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	c.conn.Close()
}
