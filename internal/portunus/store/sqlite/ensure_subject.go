package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
)

// ensureSubject inserts a subjects row for s unless one exists, and
// reports whether it did. Existing rows are never modified, so directory
// edits made by an admin survive auto-provisioning.
//
// Must be called inside an existing transaction.
func ensureSubject(ctx context.Context, tx *sql.Tx, s store.Subject, nowMs int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO subjects(
  subject_id, name, department, schedule, active, created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?);
`, s.ID, s.Name, s.Department, string(s.Schedule), boolInt(s.Active), nowMs, nowMs)
	if err != nil {
		return false, fmt.Errorf("ensureSubject %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensureSubject %s rows: %w", s.ID, err)
	}
	return n > 0, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
