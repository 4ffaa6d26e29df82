package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/squatcoach/internal/app"
)

// DefaultHUDInterval pushes about 15 snapshots per second.
const DefaultHUDInterval = time.Second / 15

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// StateSource provides the state pushed to HUD clients.
type StateSource interface {
	State() app.State
}

// hudConn is the part of a WebSocket connection the broadcaster writes to.
type hudConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// HUDHandler broadcasts the counter state to WebSocket clients.
type HUDHandler struct {
	source   StateSource
	interval time.Duration
	log      *slog.Logger

	mu      sync.RWMutex
	clients map[hudConn]*sync.Mutex

	done chan struct{}
	once sync.Once
}

// NewHUDHandler creates a HUDHandler and starts its broadcast loop.
func NewHUDHandler(source StateSource, interval time.Duration, log *slog.Logger) *HUDHandler {
	if interval <= 0 {
		interval = DefaultHUDInterval
	}
	if log == nil {
		log = slog.Default()
	}
	h := &HUDHandler{
		source:   source,
		interval: interval,
		log:      log,
		clients:  make(map[hudConn]*sync.Mutex),
		done:     make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests. The current state is sent
// immediately so clients do not wait for the next tick.
func (h *HUDHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	lock := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = lock
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	if msg, err := json.Marshal(h.source.State()); err == nil {
		if err := send(conn, lock, msg); err != nil {
			h.log.Debug("hud client write failed", "error", err)
			return
		}
	}

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *HUDHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the broadcast loop and closes all client connections.
func (h *HUDHandler) Close() {
	h.once.Do(func() {
		close(h.done)
		h.mu.RLock()
		for conn := range h.clients {
			conn.Close()
		}
		h.mu.RUnlock()
	})
}

// broadcast sends the state to all connected clients on every tick.
func (h *HUDHandler) broadcast() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
		}

		if h.Clients() == 0 {
			continue
		}

		msg, err := json.Marshal(h.source.State())
		if err != nil {
			h.log.Error("failed to encode hud state", "error", err)
			continue
		}

		h.push(msg)
	}
}

// push writes msg to every client without holding the client lock, and
// drops clients whose write fails.
func (h *HUDHandler) push(msg []byte) {
	type client struct {
		conn hudConn
		lock *sync.Mutex
	}

	h.mu.RLock()
	clients := make([]client, 0, len(h.clients))
	for conn, lock := range h.clients {
		clients = append(clients, client{conn, lock})
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := send(c.conn, c.lock, msg); err != nil {
			h.log.Debug("dropping hud client", "error", err)
			h.drop(c.conn)
		}
	}
}

// drop forgets conn and closes it, which also ends its read loop.
func (h *HUDHandler) drop(conn hudConn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

func send(conn hudConn, lock *sync.Mutex, msg []byte) error {
	lock.Lock()
	defer lock.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}
