package api

import (
	"collab-engine/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	// Learning: Middleware runs in order - tracing first, then recovery, then CORS
	r.Use(middleware.TracingMiddleware)       // Add tracing spans to all requests
	r.Use(middleware.ErrorRecoveryMiddleware) // Catch panics
	r.Use(middleware.CORSMiddleware)          // Handle CORS

	// API routes
	api := r.PathPrefix("/api").Subrouter()

	// Session endpoints
	api.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.CloseSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/content", h.GetContent).Methods("GET")

	// Participant endpoints
	api.HandleFunc("/sessions/{id}/participants", h.JoinSession).Methods("POST")
	api.HandleFunc("/sessions/{id}/participants", h.GetParticipants).Methods("GET")
	api.HandleFunc("/sessions/{id}/participants/history", h.GetParticipantHistory).Methods("GET")
	api.HandleFunc("/sessions/{id}/participants/{user_id}", h.LeaveSession).Methods("DELETE")

	// Operation endpoints
	api.HandleFunc("/sessions/{id}/operations", h.SubmitOperation).Methods("POST")
	api.HandleFunc("/sessions/{id}/operations", h.ListOperations).Methods("GET")

	// Cursor endpoints
	api.HandleFunc("/sessions/{id}/cursors", h.GetCursors).Methods("GET")
	api.HandleFunc("/sessions/{id}/cursors/{user_id}", h.UpdateCursor).Methods("PUT")
	api.HandleFunc("/sessions/{id}/cursors/{user_id}", h.GetCursor).Methods("GET")

	// Audit endpoints
	api.HandleFunc("/sessions/{id}/conflicts", h.ListSessionConflicts).Methods("GET")

	// File history endpoints
	api.HandleFunc("/files/{id}/conflicts", h.ListConflicts).Methods("GET")
	api.HandleFunc("/files/{id}/versions", h.ListVersions).Methods("GET")
	api.HandleFunc("/files/{id}/versions/{number}", h.GetVersion).Methods("GET")

	// Health check endpoint
	api.HandleFunc("/health", h.Health).Methods("GET")

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// WebSocket routes
	r.HandleFunc("/ws/sessions/{id}", h.HandleSessionWebSocket)

	return r
}
