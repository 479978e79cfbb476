package db

import (
	"fmt"
	"log"

	"collab-engine/internal/config"
	"collab-engine/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps the GORM database instance
type GormDB struct {
	*gorm.DB
}

// NewGorm initializes a new GORM database connection
// Learning: GORM provides a higher-level abstraction over raw SQL
func NewGorm(cfg *config.Config) (*GormDB, error) {
	dsn := cfg.DatabaseURL()

	logLevel := logger.Warn
	if cfg.DBLogQueries {
		logLevel = logger.Info // Shows SQL queries for debugging
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate schema
	// Learning: GORM automatically creates/updates tables based on struct definitions
	if err := db.AutoMigrate(
		&models.ConflictRecord{},   // Conflict log
		&models.ParticipantEvent{}, // Join/leave audit trail
		&models.DocumentVersion{},  // Snapshots taken when sessions close
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("✓ Database connected and migrated successfully")

	return &GormDB{db}, nil
}

// Ping checks the connection, for the health endpoint
func (db *GormDB) Ping() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close closes the database connection
func (db *GormDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
