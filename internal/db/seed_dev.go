package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SeedDevOptions struct {
	// AdminID overrides the id of the seeded administrator. Defaults to "1",
	// the id terminals ship with for their first enrolled user.
	AdminID string
}

// SeedDev inserts the starter administrator subject. Existing rows are
// left untouched so edits made through the directory survive restarts.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	id := opt.AdminID
	if id == "" {
		id = "1"
	}
	now := time.Now().UTC().UnixMilli()

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO subjects(
  subject_id, name, department, schedule, active, created_at_ms, updated_at_ms
) VALUES (?, 'admin', 'Administration', 'standard', 1, ?, ?);`, id, now, now); err != nil {
		return fmt.Errorf("seed admin subject: %w", err)
	}
	return nil
}
