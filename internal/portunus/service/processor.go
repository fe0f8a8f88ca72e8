package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/clock"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/event"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/publish"
)

// TimestampLayout formats instants in published payloads.
const TimestampLayout = time.RFC3339

// Result reports what Handle did with an event.
type Result int

const (
	ResultSkipped Result = iota
	ResultRecorded
	ResultDuplicate
	ResultDropped
	ResultDenied
	ResultDoor
)

func (r Result) String() string {
	switch r {
	case ResultRecorded:
		return "recorded"
	case ResultDuplicate:
		return "duplicate"
	case ResultDropped:
		return "dropped"
	case ResultDenied:
		return "denied"
	case ResultDoor:
		return "door"
	default:
		return "skipped"
	}
}

// ProcessorDeps wires a Processor. Journal may be nil.
type ProcessorDeps struct {
	Directory *Directory
	Records   store.RecordStore
	Resolver  *Resolver
	Guard     *DuplicateGuard
	Publisher publish.Publisher
	Journal   store.Journal
	Clock     clock.Clock
	Location  *time.Location
}

// Processor turns decoded events into ledger records and notifications.
type Processor struct {
	directory *Directory
	records   store.RecordStore
	resolver  *Resolver
	guard     *DuplicateGuard
	publisher publish.Publisher
	journal   store.Journal
	clock     clock.Clock
	loc       *time.Location
	logger    zerolog.Logger
}

func NewProcessor(deps ProcessorDeps, logger zerolog.Logger) *Processor {
	p := &Processor{
		directory: deps.Directory,
		records:   deps.Records,
		resolver:  deps.Resolver,
		guard:     deps.Guard,
		publisher: deps.Publisher,
		journal:   deps.Journal,
		clock:     deps.Clock,
		loc:       deps.Location,
		logger:    logger.With().Str("component", "processor").Logger(),
	}
	if p.publisher == nil {
		p.publisher = publish.Discard
	}
	if p.clock == nil {
		p.clock = clock.Real()
	}
	if p.loc == nil {
		p.loc = time.Local
	}
	return p
}

// Handle processes one event. An error means the event was lost: the
// ledger could not be read or the append failed.
func (p *Processor) Handle(ctx context.Context, ev event.Event) (Result, error) {
	switch ev.Kind {
	case event.KindAuthorized:
		return p.authorized(ctx, ev)
	case event.KindDenied:
		p.denied(ctx, ev)
		return ResultDenied, nil
	case event.KindDoorOpen, event.KindDoorClosed:
		p.door(ctx, ev)
		return ResultDoor, nil
	default:
		return ResultSkipped, nil
	}
}

func (p *Processor) authorized(ctx context.Context, ev event.Event) (Result, error) {
	if ev.SubjectID == "" {
		p.logger.Warn().Int("reader", ev.ReaderNo).Msg("authorized event without subject id dropped")
		return ResultDropped, nil
	}
	at := ev.OccurredAt.In(p.loc)

	dup, err := p.guard.IsDuplicate(ctx, ev.SubjectID, at)
	if err != nil {
		return ResultDropped, fmt.Errorf("duplicate check: %w", err)
	}
	if dup {
		p.logger.Info().
			Str("subject", ev.SubjectID).
			Time("at", at).
			Dur("window", p.guard.Window()).
			Msg("duplicate event ignored")
		return ResultDuplicate, nil
	}

	// Past the guard the event is committed to; a stop request must not
	// leave it half applied.
	wctx := context.WithoutCancel(ctx)

	sub, created, err := p.directory.EnsureKnown(wctx, ev.SubjectID, ev.Name)
	if err != nil {
		return ResultDropped, fmt.Errorf("provision subject %s: %w", ev.SubjectID, err)
	}
	if created {
		p.logger.Info().Str("subject", sub.ID).Str("name", sub.Name).Msg("subject auto-provisioned")
		p.publish(publish.NewSubjectCreated, publish.NewSubjectPayload{
			SubjectID:  sub.ID,
			Name:       sub.Name,
			Department: sub.Department,
		})
	}

	decision, err := p.resolver.Decide(wctx, ev.SubjectID, at)
	if err != nil {
		return ResultDropped, fmt.Errorf("resolve kind: %w", err)
	}

	rec := store.Record{
		ID:         store.NewRecordID(),
		SubjectID:  ev.SubjectID,
		Kind:       decision.Kind,
		OccurredAt: at,
		Day:        at.Format(store.DayLayout),
		ReaderNo:   ev.ReaderNo,
		Method:     ev.Method,
		Outcome:    types.OutcomeAuthorized,
	}.Normalize()

	if err := p.records.AppendRecord(wctx, rec); err != nil {
		return ResultDropped, fmt.Errorf("append record for %s: %w", ev.SubjectID, err)
	}

	p.logger.Info().
		Str("subject", rec.SubjectID).
		Str("kind", string(rec.Kind)).
		Str("schedule", string(decision.Schedule)).
		Str("rule", decision.Rule).
		Time("at", rec.OccurredAt).
		Msg("attendance recorded")

	p.publish(publish.AttendanceRecord, publish.AttendancePayload{
		SubjectID:  rec.SubjectID,
		Name:       sub.Name,
		Department: sub.Department,
		Schedule:   decision.Schedule,
		Kind:       rec.Kind,
		Timestamp:  rec.OccurredAt.Format(TimestampLayout),
		Method:     rec.Method,
		ReaderNo:   rec.ReaderNo,
	})
	return ResultRecorded, nil
}

func (p *Processor) denied(ctx context.Context, ev event.Event) {
	p.logger.Info().Str("subject", ev.SubjectID).Int("reader", ev.ReaderNo).Msg("access denied")
	p.publish(publish.AccessDenied, publish.DeniedPayload{
		SubjectID: ev.SubjectID,
		Timestamp: ev.OccurredAt.In(p.loc).Format(TimestampLayout),
		Method:    ev.Method,
		ReaderNo:  ev.ReaderNo,
	})
	p.journalize(ctx, ev)
}

func (p *Processor) door(ctx context.Context, ev event.Event) {
	open := ev.Kind == event.KindDoorOpen
	p.logger.Debug().Bool("open", open).Int("reader", ev.ReaderNo).Msg("door status")
	p.publish(publish.DoorStatus, publish.DoorPayload{
		Open:      open,
		ReaderNo:  ev.ReaderNo,
		Timestamp: ev.OccurredAt.In(p.loc).Format(TimestampLayout),
	})
	p.journalize(ctx, ev)
}

// journalize keeps an audit copy of non-attendance events. Failures are
// logged only; the journal is best effort.
func (p *Processor) journalize(ctx context.Context, ev event.Event) {
	if p.journal == nil {
		return
	}
	entry := store.JournalEntry{
		Kind:       ev.Kind.String(),
		SubjectID:  ev.SubjectID,
		Method:     string(ev.Method),
		ReaderNo:   ev.ReaderNo,
		OccurredAt: ev.OccurredAt,
		ReceivedAt: p.clock.Now(),
	}
	if err := p.journal.Append(context.WithoutCancel(ctx), entry); err != nil {
		p.logger.Warn().Err(err).Str("kind", entry.Kind).Msg("journal append failed")
	}
}

func (p *Processor) publish(name publish.Name, data any) {
	p.publisher.Publish(publish.Notification{Name: name, At: p.clock.Now(), Data: data})
}
