package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/JanNoszczyk/Freenove-Tank-Robot-Kit-for-Raspberry-Pi/internal/monitoring"
)

const (
	// clientSendBuffer bounds per-client backlog. A client that cannot keep
	// up with the decision stream loses frames, not the connection.
	clientSendBuffer = 16

	wsWriteTimeout = 5 * time.Second
)

// Hub is the websocket relay on /ws: it streams arbitration snapshots to
// every connected client and routes inbound client messages to the command
// handler. Broadcast never blocks the caller.
type Hub struct {
	upgrader websocket.Upgrader
	commands func(text string) error
	logf     func(format string, v ...interface{})

	mu      sync.Mutex
	clients map[string]chan interface{}
}

// NewHub creates an empty Hub. commands receives every inbound client
// directive; nil disables inbound handling.
func NewHub(commands func(text string) error) *Hub {
	return &Hub{
		commands: commands,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The appliance serves a trusted LAN; no origin policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logf:    monitoring.Prefixed("ws"),
		clients: make(map[string]chan interface{}),
	}
}

// ServeHTTP upgrades the connection and streams broadcasts until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("upgrade failed: %v", err)
		return
	}

	id := uuid.NewString()
	send := make(chan interface{}, clientSendBuffer)

	h.mu.Lock()
	h.clients[id] = send
	count := len(h.clients)
	h.mu.Unlock()
	h.logf("client %s connected (%d total)", id, count)

	// Reader goroutine: routes inbound directives and notices disconnects.
	go func() {
		defer h.drop(id)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			h.handleInbound(id, payload)
		}
	}()

	defer conn.Close()
	for payload := range send {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(payload); err != nil {
			h.drop(id)
			return
		}
	}
}

// handleInbound routes one client message to the command handler. Messages
// carry either a JSON {"command": "..."} envelope (the same payload as
// POST /api/command) or the bare directive text.
func (h *Hub) handleInbound(id string, payload []byte) {
	if h.commands == nil {
		return
	}
	text := string(payload)
	var req commandRequest
	if err := json.Unmarshal(payload, &req); err == nil && req.Command != "" {
		text = req.Command
	}
	if err := h.commands(text); err != nil {
		h.logf("client %s: rejected %q: %v", id, text, err)
	}
}

// Broadcast queues payload for every connected client. Clients with a full
// backlog skip this payload.
func (h *Hub) Broadcast(payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, send := range h.clients {
		select {
		case send <- payload:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) drop(id string) {
	h.mu.Lock()
	send, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logf("client %s disconnected (%d total)", id, count)
	}
}
