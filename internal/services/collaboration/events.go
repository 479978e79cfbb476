package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"collab-engine/internal/models"
	"collab-engine/internal/services/ot"
)

type originKey struct{}

// WithOrigin tags ctx with the connection an action came from. Events
// produced under it carry the origin so the hub does not echo them back.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the origin set by WithOrigin, or ""
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}

// NewConflictNotice builds the client-facing view of a conflict
func NewConflictNotice(c *ot.Conflict, resolved string) *models.ConflictNotice {
	if c == nil {
		return nil
	}
	return &models.ConflictNotice{
		Classification:  string(c.Classification),
		Operation:       c.Incoming,
		Conflicting:     c.Conflicting,
		ResolvedContent: resolved,
	}
}

// conflictRecord builds the audit row for a detected conflict. appliedVersion
// is zero when the operation was rejected.
func conflictRecord(s *session, c *ot.Conflict, appliedVersion uint64, pre, post, resolved string) (*models.ConflictRecord, error) {
	incoming, err := json.Marshal(c.Incoming)
	if err != nil {
		return nil, fmt.Errorf("encode incoming operation: %w", err)
	}
	conflicting, err := json.Marshal(c.Conflicting)
	if err != nil {
		return nil, fmt.Errorf("encode conflicting operations: %w", err)
	}

	return &models.ConflictRecord{
		FileID:          s.fileID,
		SessionID:       s.id,
		Classification:  string(c.Classification),
		Operation:       incoming,
		Conflicting:     conflicting,
		PreContent:      pre,
		PostContent:     post,
		ResolvedContent: resolved,
		Rejected:        appliedVersion == 0,
		AppliedVersion:  appliedVersion,
		ResolvedAt:      time.Now().UTC(),
	}, nil
}

// resultLabel maps an ApplyOperation error to its metrics label
func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidOperation):
		return "invalid"
	case errors.Is(err, ErrStaleOperation):
		return "stale"
	case errors.Is(err, ErrConflictDetected):
		return "conflict_rejected"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "error"
	}
}
