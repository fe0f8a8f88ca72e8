// Package sqlite implements the attendance ledger on modernc.org/sqlite.
// Reads go straight to the *sql.DB; writes are serialised through a
// db.Worker.
package sqlite

import (
	"database/sql"
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/clock"
	dbpkg "github.com/BrandonDHaskell/Portunus/attendance/internal/db"
)

// Ledger combines the subject directory and the record store into a
// store.Ledger.
type Ledger struct {
	*SubjectStore
	*RecordStore
}

// NewLedger returns a Ledger. clk stamps created_at columns; nil means
// the real clock.
func NewLedger(db *sql.DB, writer *dbpkg.Worker, loc *time.Location, clk clock.Clock) *Ledger {
	return &Ledger{
		SubjectStore: NewSubjectStore(db, writer, clk),
		RecordStore:  NewRecordStore(db, writer, loc, clk),
	}
}
