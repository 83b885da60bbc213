package db

import (
	"fmt"

	"github.com/quayhaven/quaydesk/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model QuayDesk persists.
func AllModels() []interface{} {
	return []interface{}{
		&models.Ticket{},
		&models.TicketMessage{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
