package collaboration

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"collab-engine/internal/metrics"
	"collab-engine/internal/models"
)

/*
LEARNING: WEBSOCKET HUB

The hub owns the set of live connections per session ("rooms") and is the
last hop of the fan-out path:

  Registry -> FanoutService -> Publisher (Hub, or Redis -> Subscriber -> Hub) -> Client.Send

Key Concepts:
1. **Channels as the API**: register/unregister/broadcast are processed by
   one goroutine, so room membership changes never race with delivery
2. **sync.RWMutex**: Readers (ClientCount, UserConnected) take a read lock
3. **Non-blocking sends**: A client whose buffer is full is dropped instead
   of stalling the whole room
*/

// Hub tracks websocket clients by session
type Hub struct {
	rooms      map[string]map[*Client]bool // sessionID -> set of clients
	register   chan *Client
	unregister chan *Client
	broadcast  chan *envelope
	direct     chan *directMessage
	mu         sync.RWMutex

	done     chan struct{}
	stopOnce sync.Once
}

// envelope is an encoded event on its way to a room
type envelope struct {
	sessionID string
	origin    string // client ID to skip
	version   uint64 // set for operation events only
	payload   []byte
}

// directMessage is a reply addressed to a single client
type directMessage struct {
	client  *Client
	payload []byte
}

// NewHub creates a hub; call Start before registering clients
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *envelope, 256),
		direct:     make(chan *directMessage, 256),
		done:       make(chan struct{}),
	}
}

// Start begins the hub event loop
func (h *Hub) Start() {
	log.Println("🔄 Starting websocket hub...")

	go func() {
		for {
			select {
			case <-h.done:
				log.Println("Websocket hub shutting down...")
				return

			case client := <-h.register:
				h.handleRegister(client)

			case client := <-h.unregister:
				h.handleUnregister(client)

			case env := <-h.broadcast:
				h.handleBroadcast(env)

			case msg := <-h.direct:
				h.handleDirect(msg)
			}
		}
	}()

	log.Println("✓ Websocket hub started")
}

// Register adds client to its session's room
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes client and closes its send buffer
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[client.SessionID] == nil {
		h.rooms[client.SessionID] = make(map[*Client]bool)
	}
	h.rooms[client.SessionID][client] = true
	metrics.ConnectedClients.Inc()

	log.Printf("  Client %s (user %s) connected to session %s (total: %d)",
		client.ID, client.UserID, client.SessionID, len(h.rooms[client.SessionID]))
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(client)
}

// removeLocked drops client from its room. Caller holds h.mu.
func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.rooms[client.SessionID]
	if !ok || !clients[client] {
		return
	}

	delete(clients, client)
	close(client.Send)
	metrics.ConnectedClients.Dec()

	if len(clients) == 0 {
		delete(h.rooms, client.SessionID)
	}

	log.Printf("  Client %s left session %s (remaining: %d)",
		client.ID, client.SessionID, len(clients))
}

func (h *Hub) handleBroadcast(env *envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[env.sessionID] {
		if env.origin != "" && client.ID == env.origin {
			continue
		}
		// Already contained in the snapshot this client started from
		if env.version != 0 && env.version <= client.baseline {
			continue
		}

		select {
		case client.Send <- env.payload:
		default:
			// Buffer full - connection is slow/dead
			log.Printf("⚠️  Client %s buffer full, closing connection", client.ID)
			h.removeLocked(client)
		}
	}
}

// handleDirect queues a reply if the client is still connected. Going
// through the loop means Send is never written after it is closed.
func (h *Hub) handleDirect(msg *directMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.rooms[msg.client.SessionID][msg.client] {
		return
	}

	select {
	case msg.client.Send <- msg.payload:
	default:
		log.Printf("⚠️  Client %s buffer full, closing connection", msg.client.ID)
		h.removeLocked(msg.client)
	}
}

// SendTo queues payload for one client
func (h *Hub) SendTo(client *Client, payload []byte) {
	select {
	case h.direct <- &directMessage{client: client, payload: payload}:
	case <-h.done:
	}
}

// Deliver sends event to every client in its session except the origin
func (h *Hub) Deliver(event *models.CollabEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	env := &envelope{sessionID: event.SessionID, origin: event.Origin, payload: payload}
	if event.Type == models.MessageTypeOperation {
		env.version = event.Version
	}

	select {
	case h.broadcast <- env:
		return nil
	case <-h.done:
		return fmt.Errorf("hub is shut down")
	}
}

// Publish delivers locally; it lets the hub act as the fan-out publisher
// on a single node.
func (h *Hub) Publish(ctx context.Context, event *models.CollabEvent) error {
	return h.Deliver(event)
}

// ClientCount returns the number of clients connected to a session
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[sessionID])
}

// UserConnected reports whether userID has a client in the session other
// than except.
func (h *Hub) UserConnected(sessionID, userID string, except *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[sessionID] {
		if client != except && client.UserID == userID {
			return true
		}
	}
	return false
}

// Shutdown closes every connection
func (h *Hub) Shutdown() {
	log.Println("🛑 Shutting down websocket hub...")

	h.stopOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.rooms {
		for client := range clients {
			close(client.Send)
			if client.Conn != nil {
				client.Conn.Close()
			}
			metrics.ConnectedClients.Dec()
		}
	}

	h.rooms = make(map[string]map[*Client]bool)
	log.Println("✓ Websocket hub shutdown complete")
}
