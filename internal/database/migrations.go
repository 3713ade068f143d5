package database

import (
	"fmt"

	"gorm.io/gorm"
)

// RunMigrations executes the migrations AutoMigrate cannot express
func RunMigrations(db *gorm.DB) error {
	// Create indexes for better performance
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createIndexes creates composite indexes used by the review and
// classification queries
func createIndexes(db *gorm.DB) error {
	statements := []string{
		// Review queue and list ordering
		`CREATE INDEX IF NOT EXISTS idx_case_files_status_created
		ON case_files(status, created_at)`,

		// Classification tree grouping
		`CREATE INDEX IF NOT EXISTS idx_case_files_classification
		ON case_files(classification_level1, classification_level2, classification_level3)`,

		// Audit list filters
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_action_created
		ON audit_logs(action, created_at)`,

		// OCR queue
		`CREATE INDEX IF NOT EXISTS idx_ocr_tasks_status_created
		ON ocr_tasks(status, created_at)`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}

	return nil
}
