package dbmysql

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates or updates the tables owned by the messaging service.
// The users table belongs to the user service and is only read here.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Message{}, &Conversation{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
