package service_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/clock"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/event"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/publish"
)

var loc = time.FixedZone("local", -6*3600)

// 2025-03-03 is a Monday; 2025-03-07 is the Friday of the same week.
func at(day, hour, min, sec int) time.Time {
	return time.Date(2025, 3, day, hour, min, sec, 0, loc)
}

type fixture struct {
	ledger    *memory.Ledger
	journal   *memory.Journal
	recorder  *publish.Recorder
	clock     *clock.FakeClock
	directory *service.Directory
	resolver  *service.Resolver
	guard     *service.DuplicateGuard
	processor *service.Processor
}

func newFixture(t *testing.T, multiSegmentDepts ...string) *fixture {
	t.Helper()

	f := &fixture{
		ledger:   memory.NewLedger(),
		journal:  memory.NewJournal(),
		recorder: publish.NewRecorder(),
		clock:    clock.Fake(at(3, 8, 0, 0)),
	}
	f.directory = service.NewDirectory(f.ledger, service.DirectoryConfig{
		MultiSegmentDepartments: multiSegmentDepts,
	})
	f.resolver = service.NewResolver(f.ledger, f.directory, service.MultiSegmentRules(time.Friday), loc)
	f.guard = service.NewDuplicateGuard(f.ledger, 10*time.Second)
	f.processor = service.NewProcessor(service.ProcessorDeps{
		Directory: f.directory,
		Records:   f.ledger,
		Resolver:  f.resolver,
		Guard:     f.guard,
		Publisher: f.recorder,
		Journal:   f.journal,
		Clock:     f.clock,
		Location:  loc,
	}, zerolog.Nop())
	return f
}

// seed stores a record directly, the way an admin edit would.
func (f *fixture) seed(t *testing.T, subjectID string, kind types.EventKind, when time.Time) {
	t.Helper()
	err := f.ledger.AppendRecord(t.Context(), store.Record{
		SubjectID:  subjectID,
		Kind:       kind,
		OccurredAt: when,
		Day:        when.Format(store.DayLayout),
	})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}
}

func (f *fixture) putSubject(id, department string, schedule types.ScheduleVariant) {
	f.ledger.PutSubject(store.Subject{
		ID:         id,
		Name:       "Subject " + id,
		Department: department,
		Schedule:   schedule,
		Active:     true,
	})
}

func authorized(subjectID string, when time.Time) event.Event {
	return event.Event{
		Kind:       event.KindAuthorized,
		SubjectID:  subjectID,
		ReaderNo:   1,
		Method:     types.VerifyFingerprint,
		OccurredAt: when,
		DeviceTime: true,
	}
}
