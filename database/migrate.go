package database

import (
	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/utils"
	"gorm.io/gorm"
)

// Migrate runs AutoMigrate for all models. The composite unique index on
// (project_id, contractor_id, pen_id) and the unique token index come from
// the gorm tags; both must exist before the app serves traffic because the
// token-bind compare-and-set and duplicate-pen checks rely on them.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Contractor{},
		&models.Project{},
		&models.Penetration{},
		&models.PenActivity{},
		&models.Photo{},
		&models.ContractorAccessToken{},
		&models.ContractorRegistration{},
		&models.AccessRequest{},
	)
	if err != nil {
		return err
	}

	if utils.InfoLogger != nil {
		utils.InfoLogger.Println("AutoMigrate completed.")
	}
	return nil
}
