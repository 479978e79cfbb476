package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Participant is a user's membership in a collaboration session
type Participant struct {
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// CursorPosition is a participant's advisory cursor state.
// Learning: Cursor state never mutates the document, so it is
// last-write-wins and needs no transformation.
type CursorPosition struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Line           int       `json:"line"`
	Column         int       `json:"column"`
	SelectionStart *int      `json:"selection_start,omitempty"`
	SelectionEnd   *int      `json:"selection_end,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SessionStatus is the health/status view of a session
type SessionStatus struct {
	ID               string     `json:"id"`
	FileID           string     `json:"file_id"`
	Version          uint64     `json:"version"`
	ParticipantCount int        `json:"participant_count"`
	ContentLength    int        `json:"content_length"`
	CreatedAt        time.Time  `json:"created_at"`
	LastActivityAt   time.Time  `json:"last_activity_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// MessageType identifies a message in the collaboration protocol
type MessageType string

const (
	// Client -> server
	MessageTypeOperation MessageType = "operation"
	MessageTypeCursor    MessageType = "cursor"

	// Server -> client
	MessageTypeSnapshot MessageType = "snapshot"
	MessageTypeAck      MessageType = "ack"
	MessageTypeConflict MessageType = "conflict"
	MessageTypeJoin     MessageType = "join"
	MessageTypeLeave    MessageType = "leave"
	MessageTypeError    MessageType = "error"
)

// CollabEvent is the envelope exchanged over websockets and the fan-out bus.
// Origin is the connection that caused the event; it is skipped on delivery.
type CollabEvent struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id"`
	UserID    string          `json:"user_id,omitempty"`
	Origin    string          `json:"origin,omitempty"`
	Version   uint64          `json:"version,omitempty"`
	Operation *Operation      `json:"operation,omitempty"`
	Cursor    *CursorPosition `json:"cursor,omitempty"`
	Conflict  *ConflictNotice `json:"conflict,omitempty"`
	Content   *string         `json:"content,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ConflictNotice is the client-facing summary of a detected conflict
type ConflictNotice struct {
	Classification  string      `json:"classification"`
	Operation       Operation   `json:"operation"`
	Conflicting     []Operation `json:"conflicting"`
	ResolvedContent string      `json:"resolved_content"`
}

// NewSessionID generates a time-ordered session identifier
func NewSessionID() string {
	return ksuid.New().String()
}
