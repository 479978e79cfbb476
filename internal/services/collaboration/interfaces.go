package collaboration

import (
	"context"

	"collab-engine/internal/models"
)

// Consumer-side interfaces for the registry's persistence hooks.
// Learning: The repository package returns concrete structs; the registry
// only names the methods it calls, so tests can pass in-memory fakes.

// ConflictRecorder appends to the conflict log
type ConflictRecorder interface {
	Record(ctx context.Context, record *models.ConflictRecord) error
}

// ParticipantAuditor stores join/leave events
type ParticipantAuditor interface {
	RecordEvent(ctx context.Context, event *models.ParticipantEvent) error
}

// SnapshotStore loads and saves document snapshots by file
type SnapshotStore interface {
	LatestVersion(ctx context.Context, fileID string) (*models.DocumentVersion, error)
	SaveVersion(ctx context.Context, version *models.DocumentVersion) error
}

// EventSink receives events the registry produces (joins, leaves, applied
// operations, cursor moves) for delivery to other participants.
type EventSink interface {
	Publish(ctx context.Context, event *models.CollabEvent) error
}
