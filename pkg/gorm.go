package pkg

import (
	"fmt"

	"github.com/SAP-F-2025/evaluation-access-service/internal/config"
	"github.com/SAP-F-2025/evaluation-access-service/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.IsProduction() {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// AutoMigrate creates missing tables for development databases. Production
// schemas are managed by the SQL files under migrations/.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Evaluation{},
		&models.CourseVersion{},
		&models.Enrollment{},
		&models.EvaluationAccess{},
		&models.EvaluationToken{},
		&models.EvaluationAttempt{},
	)
}
