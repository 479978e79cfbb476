package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"collab-engine/internal/middleware"
	"collab-engine/internal/models"
	"collab-engine/internal/services/collaboration"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
)

// Handler handles HTTP requests
// Learning: Uses INTERFACES defined in this package (consumer-driven)
type Handler struct {
	sessions     SessionService
	conflicts    ConflictLog
	participants ParticipantHistory
	versions     VersionStore
	wsHandler    http.Handler // WebSocket for real-time collab

	database HealthChecker // optional
	queue    QueueStats    // optional
}

func NewHandler(
	sessions SessionService,
	conflicts ConflictLog,
	participants ParticipantHistory,
	versions VersionStore,
	wsHandler http.Handler,
	database HealthChecker,
	queue QueueStats,
) *Handler {
	return &Handler{
		sessions:     sessions,
		conflicts:    conflicts,
		participants: participants,
		versions:     versions,
		wsHandler:    wsHandler,
		database:     database,
		queue:        queue,
	}
}

// Session handlers

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if req.SessionID == "" {
		req.SessionID = models.NewSessionID()
	}

	var opts []collaboration.CreateOption
	if req.Content != nil {
		opts = append(opts, collaboration.WithInitialContent(*req.Content))
	}
	if req.ExpiresInSeconds != nil {
		opts = append(opts, collaboration.WithTTL(time.Duration(*req.ExpiresInSeconds)*time.Second))
	}

	status, err := h.sessions.CreateSession(r.Context(), req.SessionID, req.FileID, opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, status)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.ListSessions(r.Context())

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	status, err := h.sessions.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.CloseSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetContent returns the current document and its version
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	content, version, err := h.sessions.Snapshot(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"version":    version,
		"content":    content,
	})
}

// Participant handlers

func (h *Handler) JoinSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var req JoinSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.sessions.JoinSession(r.Context(), sessionID, req.UserID); err != nil {
		writeError(w, r, err)
		return
	}

	h.writeParticipants(w, r, sessionID)
}

func (h *Handler) LeaveSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.sessions.LeaveSession(r.Context(), vars["id"], vars["user_id"]); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	h.writeParticipants(w, r, mux.Vars(r)["id"])
}

// GetParticipantHistory returns the stored join/leave trail. It reads the
// audit table, so it also works after the session has closed.
func (h *Handler) GetParticipantHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	events, err := h.participants.ListBySession(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"events":     events,
	})
}

func (h *Handler) writeParticipants(w http.ResponseWriter, r *http.Request, sessionID string) {
	participants, err := h.sessions.GetParticipants(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":   sessionID,
		"participants": participants,
	})
}

// Operation handlers

// SubmitOperationResponse is returned for every accepted operation
type SubmitOperationResponse struct {
	SessionID string                 `json:"session_id"`
	Version   uint64                 `json:"version"`
	Operation models.Operation       `json:"operation"`
	Duplicate bool                   `json:"duplicate,omitempty"`
	Noop      bool                   `json:"noop,omitempty"`
	Conflict  *models.ConflictNotice `json:"conflict,omitempty"`
}

func (h *Handler) SubmitOperation(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var op models.Operation
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&op); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", errValidation, err))
		return
	}
	if err := validate.Var(op.Author, "required,max=64"); err != nil {
		writeError(w, r, fmt.Errorf("%w: author: %s", errValidation, describeValidation(err)))
		return
	}

	middleware.AddSpanEvent(r.Context(), "operation.received",
		attribute.String("operation.kind", string(op.Kind())),
		attribute.Int64("operation.base_version", int64(op.BaseVersion)),
	)

	result, err := h.sessions.ApplyOperation(r.Context(), sessionID, op)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := SubmitOperationResponse{
		SessionID: sessionID,
		Version:   result.Version,
		Operation: result.Operation,
		Duplicate: result.Duplicate,
		Noop:      result.Noop,
	}
	if result.Conflict != nil {
		resp.Conflict = collaboration.NewConflictNotice(result.Conflict, result.ResolvedContent)
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListOperations returns the operations applied after ?since=<version>
func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	var since uint64
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: since must be a non-negative integer", errValidation))
			return
		}
		since = parsed
	}

	ops, err := h.sessions.OperationsSince(r.Context(), sessionID, since)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"since":      since,
		"version":    since + uint64(len(ops)),
		"operations": ops,
	})
}

// Cursor handlers

func (h *Handler) UpdateCursor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req CursorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.check(); err != nil {
		writeError(w, r, err)
		return
	}

	pos := models.CursorPosition{
		SessionID:      vars["id"],
		UserID:         vars["user_id"],
		Line:           req.Line,
		Column:         req.Column,
		SelectionStart: req.SelectionStart,
		SelectionEnd:   req.SelectionEnd,
	}
	if err := h.sessions.UpdateCursor(r.Context(), vars["id"], pos); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetCursor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	cursor, err := h.sessions.Cursor(r.Context(), vars["id"], vars["user_id"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cursor)
}

func (h *Handler) GetCursors(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	cursors, err := h.sessions.Cursors(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"cursors":    cursors,
	})
}

// File history handlers

func (h *Handler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]
	limit, offset := pagination(r, 50)

	records, err := h.conflicts.ListByFile(r.Context(), fileID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file_id":   fileID,
		"conflicts": records,
		"limit":     limit,
		"offset":    offset,
	})
}

// ListSessionConflicts returns every conflict detected in one session,
// rejected operations included
func (h *Handler) ListSessionConflicts(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]

	records, err := h.conflicts.ListBySession(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"conflicts":  records,
	})
}

func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]
	limit, _ := pagination(r, 20)

	versions, err := h.versions.ListVersions(r.Context(), fileID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file_id":  fileID,
		"versions": versions,
	})
}

func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	number, err := strconv.ParseUint(vars["number"], 10, 64)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: version number must be a non-negative integer", errValidation))
		return
	}

	version, err := h.versions.GetVersion(r.Context(), vars["id"], number)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, version)
}

// Health reports process and dependency state. A failed database ping
// degrades the status but the collaboration core keeps serving.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":   "ok",
		"sessions": len(h.sessions.ListSessions(r.Context())),
	}

	if h.database != nil {
		if err := h.database.Ping(); err != nil {
			resp["status"] = "degraded"
			resp["database"] = err.Error()
		} else {
			resp["database"] = "ok"
		}
	}
	if h.queue != nil {
		resp["fanout_queue"] = h.queue.GetQueueLength()
	}

	writeJSON(w, http.StatusOK, resp)
}

// pagination parses ?limit=&offset= the lenient way: bad values fall back
// to defaults and limit is capped at 200.
func pagination(r *http.Request, defaultLimit int) (int, int) {
	limit, offset := defaultLimit, 0

	if parsed, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && parsed > 0 {
		limit = parsed
	}
	if parsed, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && parsed >= 0 {
		offset = parsed
	}
	if limit > 200 {
		limit = 200
	}
	return limit, offset
}
