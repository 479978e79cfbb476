package repository

import (
	"context"
	"fmt"

	"collab-engine/internal/models"

	"gorm.io/gorm"
)

// ParticipantRepositoryImpl stores the join/leave audit trail
type ParticipantRepositoryImpl struct {
	db *gorm.DB
}

// NewParticipantRepository creates a new participant repository
func NewParticipantRepository(db *gorm.DB) *ParticipantRepositoryImpl {
	return &ParticipantRepositoryImpl{db: db}
}

// RecordEvent stores one join or leave
func (r *ParticipantRepositoryImpl) RecordEvent(ctx context.Context, event *models.ParticipantEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to store participant event: %w", err)
	}

	return nil
}

// ListBySession returns a session's membership history, oldest first
func (r *ParticipantRepositoryImpl) ListBySession(ctx context.Context, sessionID string) ([]*models.ParticipantEvent, error) {
	var events []*models.ParticipantEvent

	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&events).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list participant events: %w", err)
	}

	return events, nil
}
