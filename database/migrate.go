package database

import (
	"fmt"
	"log"
	"math"
)

// columnExists checks if a column exists in a table
func (d *Database) columnExists(tableName, columnName string) (bool, error) {
	query := `
	SELECT COUNT(*)
	FROM INFORMATION_SCHEMA.COLUMNS
	WHERE TABLE_SCHEMA = DATABASE()
	AND TABLE_NAME = ?
	AND COLUMN_NAME = ?`

	var count int
	err := d.db.QueryRow(query, tableName, columnName).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check if column exists: %w", err)
	}

	return count > 0, nil
}

// MigrateReportScoresTable adds columns introduced after the table first
// shipped. Safe to run on every startup.
func (d *Database) MigrateReportScoresTable() error {
	// Check and add image_hash column
	exists, err := d.columnExists("report_scores", "image_hash")
	if err != nil {
		return fmt.Errorf("failed to check if image_hash column exists: %w", err)
	}

	if !exists {
		log.Printf("Adding image_hash column to report_scores table...")
		query := "ALTER TABLE report_scores ADD COLUMN image_hash BIGINT UNSIGNED DEFAULT 0"
		_, err = d.db.Exec(query)
		if err != nil {
			return fmt.Errorf("failed to add image_hash column: %w", err)
		}
		log.Printf("Successfully added image_hash column to report_scores table")
	} else {
		log.Printf("image_hash column already exists in report_scores table, skipping migration")
	}

	// Check and add is_duplicate column
	exists, err = d.columnExists("report_scores", "is_duplicate")
	if err != nil {
		return fmt.Errorf("failed to check if is_duplicate column exists: %w", err)
	}

	if !exists {
		log.Printf("Adding is_duplicate column to report_scores table...")
		query := "ALTER TABLE report_scores ADD COLUMN is_duplicate BOOLEAN DEFAULT FALSE"
		_, err = d.db.Exec(query)
		if err != nil {
			return fmt.Errorf("failed to add is_duplicate column: %w", err)
		}
		log.Printf("Successfully added is_duplicate column to report_scores table")
	} else {
		log.Printf("is_duplicate column already exists in report_scores table, skipping migration")
	}

	return nil
}

func cosDegrees(deg float64) float64 {
	c := math.Cos(deg * math.Pi / 180.0)
	// Guard against division blowing up near the poles.
	if math.Abs(c) < 1e-6 {
		return 1e-6
	}
	return c
}
