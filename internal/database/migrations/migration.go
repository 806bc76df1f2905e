package migrations

import (
	"eventproxy/internal/models"

	"gorm.io/gorm"
)

type Migration struct {
	Name string
	Run  func(*gorm.DB) error
}

func GetMigrations() []Migration {
	return []Migration{
		{
			Name: "CreateTenancyTables",
			Run: func(db *gorm.DB) error {
				return db.AutoMigrate(
					&models.Event{},
					&models.Owner{},
					&models.OwnerEventMap{},
					&models.ModelDeployment{},
					&models.EventAttendee{},
				)
			},
		},
		{
			Name: "CreateUsageTables",
			Run: func(db *gorm.DB) error {
				return db.AutoMigrate(
					&models.EventUsage{},
					&models.ModelCounts{},
					&models.ChartData{},
				)
			},
		},
		{
			Name: "AddDeploymentLookupIndex",
			Run: func(db *gorm.DB) error {
				return db.Exec("CREATE INDEX IF NOT EXISTS idx_model_deployments_owner_name ON model_deployments(owner_id, deployment_name) WHERE active").Error
			},
		},
		{
			Name: "AddModelCountsTotalCheck",
			Run: func(db *gorm.DB) error {
				return db.Exec("ALTER TABLE model_counts ADD CONSTRAINT chk_model_counts_total CHECK (total_tokens = prompt_tokens + completion_tokens)").Error
			},
		},
	}
}
