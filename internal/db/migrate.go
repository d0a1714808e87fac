package db

import (
	"fmt"

	"github.com/red-ai/redterm/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the record table.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(&models.Record{}); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_records_updated_at_key
		ON records (updated_at DESC, key DESC)
	`).Error; errIdx != nil {
		return fmt.Errorf("db: create index idx_records_updated_at_key: %w", errIdx)
	}
	return nil
}
