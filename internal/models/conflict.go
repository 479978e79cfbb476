package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

/*
LEARNING: APPEND-ONLY AUDIT TABLES

Conflict records and participant events are never updated after insert.
They exist so that a user (or an operator) can later see which concurrent
edits overlapped and what the merged document looked like.
*/

// ConflictRecord stores one detected conflict and its resolution
type ConflictRecord struct {
	ID              string    `gorm:"type:varchar(27);primaryKey" json:"id"`
	FileID          string    `gorm:"type:varchar(64);not null;index:idx_conflict_file_time" json:"file_id"`
	SessionID       string    `gorm:"type:varchar(64);not null;index" json:"session_id"`
	Classification  string    `gorm:"type:varchar(50);not null" json:"classification"`
	Operation       []byte    `gorm:"type:jsonb;not null" json:"operation"`   // incoming op, as submitted
	Conflicting     []byte    `gorm:"type:jsonb;not null" json:"conflicting"` // competing logged ops
	PreContent      string    `gorm:"type:text;not null" json:"pre_content"`  // document at the op's base version
	PostContent     string    `gorm:"type:text;not null" json:"post_content"` // live document afterwards
	ResolvedContent string    `gorm:"type:text;not null" json:"resolved_content"`
	Rejected        bool      `gorm:"not null;default:false" json:"rejected"`
	AppliedVersion  uint64    `gorm:"not null" json:"applied_version"` // 0 when rejected
	ResolvedAt      time.Time `gorm:"index:idx_conflict_file_time" json:"resolved_at"`
}

// BeforeCreate generates KSUID
func (c *ConflictRecord) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (ConflictRecord) TableName() string {
	return "conflict_records"
}

// ParticipantEventKind is either a join or a leave
type ParticipantEventKind string

const (
	ParticipantJoined ParticipantEventKind = "join"
	ParticipantLeft   ParticipantEventKind = "leave"
)

// ParticipantEvent is the audit trail of session membership
type ParticipantEvent struct {
	ID         string               `gorm:"type:varchar(27);primaryKey" json:"id"`
	SessionID  string               `gorm:"type:varchar(64);not null;index:idx_participant_session_time" json:"session_id"`
	UserID     string               `gorm:"type:varchar(64);not null" json:"user_id"`
	Kind       ParticipantEventKind `gorm:"type:varchar(10);not null" json:"kind"`
	OccurredAt time.Time            `gorm:"index:idx_participant_session_time" json:"occurred_at"`
}

// BeforeCreate generates KSUID
func (p *ParticipantEvent) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (ParticipantEvent) TableName() string {
	return "participant_events"
}
