package api

import (
	"context"

	"collab-engine/internal/models"
	"collab-engine/internal/services/collaboration"
)

/*
LEARNING: CONSUMER-DRIVEN INTERFACES (Go Idiom)

This package (api/handlers) is the CONSUMER of services, so service interfaces live HERE.

The handler doesn't care about service implementation details - it only cares about
the methods it needs to call. *collaboration.Registry, the GORM repositories and the
fan-out pool satisfy these without knowing they exist, and tests pass fakes.
*/

// SessionService is what handlers need from the session registry
type SessionService interface {
	CreateSession(ctx context.Context, sessionID, fileID string, opts ...collaboration.CreateOption) (*models.SessionStatus, error)
	CloseSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context) []models.SessionStatus
	Status(ctx context.Context, sessionID string) (*models.SessionStatus, error)
	JoinSession(ctx context.Context, sessionID, userID string) error
	LeaveSession(ctx context.Context, sessionID, userID string) error
	GetParticipants(ctx context.Context, sessionID string) ([]models.Participant, error)
	ApplyOperation(ctx context.Context, sessionID string, op models.Operation) (*collaboration.ApplyResult, error)
	OperationsSince(ctx context.Context, sessionID string, version uint64) ([]models.Operation, error)
	UpdateCursor(ctx context.Context, sessionID string, pos models.CursorPosition) error
	Cursor(ctx context.Context, sessionID, userID string) (*models.CursorPosition, error)
	Cursors(ctx context.Context, sessionID string) ([]models.CursorPosition, error)
	Snapshot(ctx context.Context, sessionID string) (string, uint64, error)
}

// ConflictLog lists recorded conflicts
type ConflictLog interface {
	ListByFile(ctx context.Context, fileID string, limit, offset int) ([]*models.ConflictRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]*models.ConflictRecord, error)
}

// ParticipantHistory lists join/leave events, including those of closed sessions
type ParticipantHistory interface {
	ListBySession(ctx context.Context, sessionID string) ([]*models.ParticipantEvent, error)
}

// VersionStore reads document snapshots
type VersionStore interface {
	ListVersions(ctx context.Context, fileID string, limit int) ([]*models.DocumentVersion, error)
	GetVersion(ctx context.Context, fileID string, number uint64) (*models.DocumentVersion, error)
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	Ping() error
}

// QueueStats exposes the fan-out backlog for the health endpoint
type QueueStats interface {
	GetQueueLength() int
}
