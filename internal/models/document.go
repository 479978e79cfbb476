package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// DocumentVersion is a snapshot of a file's content taken when a
// collaboration session closes.
// Learning: KSUID instead of UUID gives time-ordered primary keys, so
// "latest snapshot" is a cheap ORDER BY on the index.
type DocumentVersion struct {
	ID             string    `json:"id" gorm:"type:char(27);primaryKey"`
	FileID         string    `json:"file_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_file_version"`
	VersionNumber  uint64    `json:"version_number" gorm:"not null;uniqueIndex:idx_file_version"`
	SessionID      string    `json:"session_id" gorm:"type:varchar(64)"`
	SessionVersion uint64    `json:"session_version" gorm:"not null"` // ops applied in that session
	Content        string    `json:"content" gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// BeforeCreate hook generates KSUID before inserting
func (d *DocumentVersion) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (DocumentVersion) TableName() string {
	return "document_versions"
}
