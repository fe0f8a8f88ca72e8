package service

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
)

const DefaultDuplicateWindow = 10 * time.Second

// DuplicateGuard rejects a candidate record when the subject already has
// a record strictly inside the window before it. There is no upper bound:
// a record later than the candidate also suppresses it.
type DuplicateGuard struct {
	records store.RecordStore
	window  time.Duration
}

func NewDuplicateGuard(records store.RecordStore, window time.Duration) *DuplicateGuard {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &DuplicateGuard{records: records, window: window}
}

func (g *DuplicateGuard) Window() time.Duration { return g.window }

func (g *DuplicateGuard) IsDuplicate(ctx context.Context, subjectID string, at time.Time) (bool, error) {
	return g.records.HasRecordAfter(ctx, subjectID, at.Add(-g.window))
}
