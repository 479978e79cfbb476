package collaboration

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-engine/internal/models"
)

func dialSession(t *testing.T, hub *Hub, r *Registry, sessionID, userID string) *websocket.Conn {
	t.Helper()

	router := mux.NewRouter()
	router.HandleFunc("/ws/sessions/{id}", NewWebSocketHandler(hub, r, 0, 0).HandleSessionConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + sessionID + "?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.CollabEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event models.CollabEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestConnectionStartsWithSnapshot(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	hub.Start()
	defer hub.Shutdown()

	r := NewRegistry(Options{Events: hub})
	newSession(t, r, "s1", "abc")
	_, err := r.ApplyOperation(ctx, "s1", insertOp("a", 0, 3, "d"))
	require.NoError(t, err)

	conn := dialSession(t, hub, r, "s1", "alice")

	first := readEvent(t, conn)
	assert.Equal(t, models.MessageTypeSnapshot, first.Type)
	assert.Equal(t, uint64(1), first.Version)
	require.NotNil(t, first.Content)
	assert.Equal(t, "abcd", *first.Content)

	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 }, time.Second, 10*time.Millisecond)

	_, err = r.ApplyOperation(ctx, "s1", insertOp("b", 1, 4, "e"))
	require.NoError(t, err)

	next := readEvent(t, conn)
	assert.Equal(t, models.MessageTypeOperation, next.Type)
	assert.Equal(t, uint64(2), next.Version)
}

func TestWithSnapshotHoldsOffWriters(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(Options{LockTimeout: 20 * time.Millisecond})
	newSession(t, r, "s1", "x")

	err := r.WithSnapshot(ctx, "s1", func(content string, version uint64) {
		assert.Equal(t, "x", content)
		assert.Equal(t, uint64(0), version)

		_, err := r.ApplyOperation(ctx, "s1", insertOp("a", 0, 0, "y"))
		assert.ErrorIs(t, err, ErrBusy)
	})
	require.NoError(t, err)

	err = r.WithSnapshot(ctx, "missing", func(string, uint64) {})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
