package repository

import (
	"context"
	"errors"
	"fmt"

	"collab-engine/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// VersionRepositoryImpl handles document snapshots using GORM
// Learning: This is the IMPLEMENTATION. It doesn't know about any interface.
// The collaboration package declares the SnapshotStore interface it needs.
type VersionRepositoryImpl struct {
	db *gorm.DB
}

// NewVersionRepository creates a new version repository
// Returns concrete type - "Accept interfaces, return structs"
func NewVersionRepository(db *gorm.DB) *VersionRepositoryImpl {
	return &VersionRepositoryImpl{db: db}
}

// LatestVersion returns the newest snapshot of a file, or nil if there is none
func (r *VersionRepositoryImpl) LatestVersion(ctx context.Context, fileID string) (*models.DocumentVersion, error) {
	var version models.DocumentVersion

	err := r.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("version_number DESC").
		First(&version).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // No snapshots yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest version: %w", err)
	}

	return &version, nil
}

// SaveVersion stores version as the file's next version number
// Learning: The read of the current maximum and the insert run in one
// transaction; the unique (file_id, version_number) index rejects a
// concurrent writer that picked the same number.
func (r *VersionRepositoryImpl) SaveVersion(ctx context.Context, version *models.DocumentVersion) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest uint64
		if err := tx.Model(&models.DocumentVersion{}).
			Where("file_id = ?", version.FileID).
			Select("COALESCE(MAX(version_number), 0)").
			Scan(&latest).Error; err != nil {
			return err
		}

		version.VersionNumber = latest + 1
		return tx.Create(version).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save version of file %s: %w", version.FileID, err)
	}

	return nil
}

// GetVersion returns one snapshot by number
func (r *VersionRepositoryImpl) GetVersion(ctx context.Context, fileID string, number uint64) (*models.DocumentVersion, error) {
	var version models.DocumentVersion

	err := r.db.WithContext(ctx).
		First(&version, "file_id = ? AND version_number = ?", fileID, number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("version %d of file %s: %w", number, fileID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	return &version, nil
}

// ListVersions returns a file's snapshots, newest first
func (r *VersionRepositoryImpl) ListVersions(ctx context.Context, fileID string, limit int) ([]*models.DocumentVersion, error) {
	var versions []*models.DocumentVersion

	err := r.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("version_number DESC").
		Limit(limit).
		Find(&versions).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	return versions, nil
}
