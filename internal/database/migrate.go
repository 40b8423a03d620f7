package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/calai-cam/backend/internal/models"
)

// Migrate applies the schema to the connected backend.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.FoodLog{},
	); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}
	return nil
}
