package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"collab-engine/internal/middleware"
	"collab-engine/internal/models"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

/*
LEARNING: WEBSOCKET UPGRADER

The upgrader converts HTTP connections to WebSocket connections.

Key settings:
- ReadBufferSize/WriteBufferSize: Memory for I/O operations
- CheckOrigin: CORS validation for WebSocket connections
*/

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // must be less than pongWait
	maxMessageSize = 512 * 1024
	sendBufferSize = 256
)

// ClientMessage is what a client sends over the socket
type ClientMessage struct {
	Type      models.MessageType     `json:"type"`
	Operation *models.Operation      `json:"operation,omitempty"`
	Cursor    *models.CursorPosition `json:"cursor,omitempty"`
}

// Client is one websocket connection to a session
type Client struct {
	ID        string
	SessionID string
	UserID    string
	Conn      *websocket.Conn
	Send      chan []byte // Buffered channel for outbound messages

	hub      *Hub
	registry *Registry
	limiter  *rate.Limiter
	baseline uint64 // snapshot version; operations at or below it are skipped
}

// WebSocketHandler handles WebSocket connections for collaboration sessions
type WebSocketHandler struct {
	hub          *Hub
	registry     *Registry
	opsPerSecond float64
	burst        int
}

// NewWebSocketHandler creates a new WebSocket handler. opsPerSecond <= 0
// disables per-client rate limiting.
func NewWebSocketHandler(hub *Hub, registry *Registry, opsPerSecond float64, burst int) *WebSocketHandler {
	if burst <= 0 {
		burst = 1
	}
	return &WebSocketHandler{
		hub:          hub,
		registry:     registry,
		opsPerSecond: opsPerSecond,
		burst:        burst,
	}
}

// HandleSessionConnection joins the user to the session, sends a snapshot
// and starts the read/write pumps.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := mux.Vars(r)["id"]

	// Extract user info from query params (authentication happens upstream)
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	ctx, span := middleware.StartSpan(ctx, "WebSocket.Connect",
		attribute.String("session.id", sessionID),
		attribute.String("user.id", userID),
	)
	defer span.End()

	if _, err := h.registry.Status(ctx, sessionID); err != nil {
		middleware.AddSpanError(ctx, err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	client := &Client{
		ID:        ksuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Conn:      conn,
		Send:      make(chan []byte, sendBufferSize),
		hub:       h.hub,
		registry:  h.registry,
		limiter:   rate.NewLimiter(rate.Inf, 0),
	}
	if h.opsPerSecond > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(h.opsPerSecond), h.burst)
	}

	// The request context ends when this handler returns; the pumps outlive it.
	connCtx := WithOrigin(context.WithoutCancel(ctx), client.ID)

	if err := h.registry.JoinSession(connCtx, sessionID, userID); err != nil {
		h.hub.Register(client)
		client.sendError(err)
	} else {
		h.sendInitialState(connCtx, client)
	}

	// Learning: Separate goroutines prevent deadlock between reading and writing
	go client.WritePump()
	go client.ReadPump(connCtx)

	log.Printf("✓ WebSocket connection established for session %s (user: %s, client: %s)",
		sessionID, userID, client.ID)
}

// sendInitialState sends the current document and every cursor to a new
// client so it can start editing at the returned version. The snapshot is
// queued and the client registered while the session is locked, so it is
// always the first frame and no operation after it is missed.
func (h *WebSocketHandler) sendInitialState(ctx context.Context, client *Client) {
	err := h.registry.WithSnapshot(ctx, client.SessionID, func(content string, version uint64) {
		client.baseline = version
		client.enqueue(&models.CollabEvent{
			Type:      models.MessageTypeSnapshot,
			SessionID: client.SessionID,
			Version:   version,
			Content:   &content,
			Timestamp: time.Now().UTC(),
		})
		h.hub.Register(client)
	})
	if err != nil {
		h.hub.Register(client)
		client.sendError(err)
		return
	}

	cursors, err := h.registry.Cursors(ctx, client.SessionID)
	if err != nil {
		return
	}
	for i := range cursors {
		if cursors[i].UserID == client.UserID {
			continue
		}
		client.send(&models.CollabEvent{
			Type:      models.MessageTypeCursor,
			SessionID: client.SessionID,
			UserID:    cursors[i].UserID,
			Cursor:    &cursors[i],
			Timestamp: cursors[i].UpdatedAt,
		})
	}
}

// ReadPump reads messages from the WebSocket connection
// Learning: Each client has its own goroutine reading from the WebSocket
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.Conn.Close()
		if !c.hub.UserConnected(c.SessionID, c.UserID, c) {
			if err := c.registry.LeaveSession(ctx, c.SessionID, c.UserID); err != nil &&
				!errors.Is(err, ErrSessionNotFound) {
				log.Printf("⚠️  Failed to leave session %s: %v", c.SessionID, err)
			}
		}
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		c.handleMessage(ctx, message)
	}
}

func (c *Client) handleMessage(ctx context.Context, message []byte) {
	msgCtx, span := middleware.StartSpan(ctx, "WebSocket.ProcessMessage",
		attribute.String("session.id", c.SessionID),
		attribute.String("client.id", c.ID),
		attribute.Int("message.size", len(message)),
	)
	defer span.End()

	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		middleware.AddSpanError(msgCtx, err)
		c.sendError(err)
		return
	}

	switch msg.Type {
	case models.MessageTypeOperation:
		if msg.Operation == nil {
			c.sendError(errors.New("operation message without operation"))
			return
		}
		if !c.limiter.Allow() {
			c.sendError(errors.New("rate limit exceeded"))
			return
		}
		c.applyOperation(msgCtx, *msg.Operation)

	case models.MessageTypeCursor:
		if msg.Cursor == nil {
			c.sendError(errors.New("cursor message without cursor"))
			return
		}
		pos := *msg.Cursor
		pos.UserID = c.UserID
		if err := c.registry.UpdateCursor(msgCtx, c.SessionID, pos); err != nil {
			middleware.AddSpanError(msgCtx, err)
			c.sendError(err)
		}

	default:
		c.sendError(errors.New("unknown message type: " + string(msg.Type)))
	}
}

// applyOperation submits op and acks the outcome to this client only;
// other clients learn about it through the fan-out path.
func (c *Client) applyOperation(ctx context.Context, op models.Operation) {
	op.Author = c.UserID

	res, err := c.registry.ApplyOperation(ctx, c.SessionID, op)
	if err != nil {
		middleware.AddSpanError(ctx, err)

		var conflictErr *ConflictError
		if errors.As(err, &conflictErr) {
			c.send(&models.CollabEvent{
				Type:      models.MessageTypeConflict,
				SessionID: c.SessionID,
				UserID:    c.UserID,
				Version:   conflictErr.Conflict.CurrentVersion,
				Conflict:  NewConflictNotice(conflictErr.Conflict, conflictErr.ResolvedContent),
				Error:     err.Error(),
				Timestamp: time.Now().UTC(),
			})
			return
		}
		c.sendError(err)
		return
	}

	logged := res.Operation
	c.send(&models.CollabEvent{
		Type:      models.MessageTypeAck,
		SessionID: c.SessionID,
		UserID:    c.UserID,
		Version:   res.Version,
		Operation: &logged,
		Conflict:  NewConflictNotice(res.Conflict, res.ResolvedContent),
		Timestamp: time.Now().UTC(),
	})
}

// enqueue writes straight into Send. Only valid before the hub owns the client.
func (c *Client) enqueue(event *models.CollabEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️  Failed to encode %s for client %s: %v", event.Type, c.ID, err)
		return
	}
	select {
	case c.Send <- payload:
	default:
		log.Printf("⚠️  Client %s buffer full before registration", c.ID)
	}
}

// send queues an event for this client only
func (c *Client) send(event *models.CollabEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️  Failed to encode %s for client %s: %v", event.Type, c.ID, err)
		return
	}
	c.hub.SendTo(c, payload)
}

func (c *Client) sendError(err error) {
	c.send(&models.CollabEvent{
		Type:      models.MessageTypeError,
		SessionID: c.SessionID,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	})
}

// WritePump writes messages to the WebSocket connection
// Learning: Separate goroutine for writing prevents blocking on slow clients
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
