package repository

import (
	"context"
	"fmt"

	"collab-engine/internal/models"

	"gorm.io/gorm"
)

/*
LEARNING: CONFLICT LOG PERSISTENCE

The conflict log is append-only: rows are inserted when the registry flags
an applied operation and never updated. It answers "which concurrent edits
overlapped on this file, and what did the document look like before and
after?"

Query patterns:
- Record: one row per flagged operation
- ListByFile: newest first, for the conflicts endpoint
- ListBySession: everything one session produced, oldest first
*/

// ConflictRepositoryImpl handles conflict record storage
type ConflictRepositoryImpl struct {
	db *gorm.DB
}

// NewConflictRepository creates a new conflict repository
func NewConflictRepository(db *gorm.DB) *ConflictRepositoryImpl {
	return &ConflictRepositoryImpl{db: db}
}

// Record stores a conflict record
// The KSUID is auto-generated in the BeforeCreate hook
func (r *ConflictRepositoryImpl) Record(ctx context.Context, record *models.ConflictRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to store conflict record: %w", err)
	}

	return nil
}

// ListByFile returns a file's conflicts, newest first
func (r *ConflictRepositoryImpl) ListByFile(ctx context.Context, fileID string, limit, offset int) ([]*models.ConflictRecord, error) {
	var records []*models.ConflictRecord

	err := r.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("resolved_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts for file %s: %w", fileID, err)
	}

	return records, nil
}

// ListBySession returns a session's conflicts in the order they were detected,
// rejected ones included
func (r *ConflictRepositoryImpl) ListBySession(ctx context.Context, sessionID string) ([]*models.ConflictRecord, error) {
	var records []*models.ConflictRecord

	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("resolved_at ASC").
		Order("id ASC").
		Find(&records).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts for session %s: %w", sessionID, err)
	}

	return records, nil
}
