package api

import (
	"net/http"
)

// WebSocket endpoints

// HandleSessionWebSocket handles WebSocket connections for a collaboration session.
// Clients connect with ?user_id=<id>; an unknown session is refused before the upgrade.
func (h *Handler) HandleSessionWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHandler == nil {
		http.Error(w, "websocket transport disabled", http.StatusServiceUnavailable)
		return
	}
	h.wsHandler.ServeHTTP(w, r)
}
