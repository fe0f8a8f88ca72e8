package service

import (
	"context"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
)

// Decision is the resolver's answer plus what produced it.
type Decision struct {
	Kind       types.EventKind
	Schedule   types.ScheduleVariant
	Rule       string // matching multi-segment rule, if any
	FirstOfDay bool
}

// Resolver derives entry/exit for an authorized event from the subject's
// records on the same local day. It holds no per-subject state and reads
// the ledger on every call, so records written by other processes are
// always taken into account.
type Resolver struct {
	records   store.RecordStore
	directory *Directory
	rules     Rules
	loc       *time.Location
}

// NewResolver returns a Resolver. A nil loc means time.Local.
func NewResolver(records store.RecordStore, dir *Directory, rules Rules, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{records: records, directory: dir, rules: rules, loc: loc}
}

func (r *Resolver) Resolve(ctx context.Context, subjectID string, at time.Time) (types.EventKind, error) {
	d, err := r.Decide(ctx, subjectID, at)
	return d.Kind, err
}

func (r *Resolver) Decide(ctx context.Context, subjectID string, at time.Time) (Decision, error) {
	at = at.In(r.loc)

	variant := types.ScheduleStandard
	sub, ok, err := r.directory.Lookup(ctx, subjectID)
	if err != nil {
		return Decision{}, fmt.Errorf("lookup subject %s: %w", subjectID, err)
	}
	if ok {
		variant = r.directory.Schedule(sub)
	}

	last, ok, err := r.records.LastRecordOnDay(ctx, subjectID, at.Format(store.DayLayout))
	if err != nil {
		return Decision{}, fmt.Errorf("last record for %s: %w", subjectID, err)
	}
	if !ok {
		return Decision{Kind: types.KindEntry, Schedule: variant, FirstOfDay: true}, nil
	}

	d := Decision{Kind: last.Kind.Opposite(), Schedule: variant}
	if variant != types.ScheduleMultiSegment {
		return d, nil
	}
	if rule := r.rules.Match(at); rule != nil {
		d.Kind = rule.Apply(last.Kind)
		d.Rule = rule.Name
	}
	return d, nil
}
