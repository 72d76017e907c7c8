package database

import (
	"fmt"
	"time"

	"github.com/yeremiapane/chopchop-backend/models"
	"github.com/yeremiapane/chopchop-backend/utils"
	"gorm.io/gorm"
)

// Models lists every table of the order store.
func Models() []interface{} {
	return []interface{}{
		&models.Document{},
		&models.TrackingUpdateRecord{},
		&models.Eatery{},
		&models.EateryRestaurant{},
		&models.ProjectionJob{},
		&models.DBChange{},
	}
}

// Migrate creates or updates the schema. Writes to the store record their
// own change rows, so no database triggers are installed.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
	return nil
}

// PruneChanges deletes processed change rows older than the cutoff.
func PruneChanges(db *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := db.Where("processed = ? AND changed_at < ?", true, cutoff).Delete(&models.DBChange{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		utils.InfoLogger.Printf("Pruned %d processed changes", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
