package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/clock"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/publish"
)

var ErrSubjectNotFound = errors.New("subject not found")

const (
	dashboardWindow = 24 * time.Hour
	recentLimit     = 50
)

// Dashboard builds read-only views of the ledger for clients.
type Dashboard struct {
	records     store.RecordStore
	directory   *Directory
	session     *Session
	clock       clock.Clock
	loc         *time.Location
	lastWeekday time.Weekday
}

func NewDashboard(records store.RecordStore, dir *Directory, session *Session, clk clock.Clock, loc *time.Location, lastWeekday time.Weekday) *Dashboard {
	if clk == nil {
		clk = clock.Real()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Dashboard{
		records:     records,
		directory:   dir,
		session:     session,
		clock:       clk,
		loc:         loc,
		lastWeekday: lastWeekday,
	}
}

// Snapshot summarises the last 24 hours. A subject is inside when its
// latest record in that window is an entry.
func (d *Dashboard) Snapshot(ctx context.Context) (types.DashboardSnapshot, error) {
	now := d.clock.Now().In(d.loc)

	recs, err := d.records.RecordsSince(ctx, now.Add(-dashboardWindow))
	if err != nil {
		return types.DashboardSnapshot{}, fmt.Errorf("records since: %w", err)
	}
	subjects, err := d.directory.List(ctx)
	if err != nil {
		return types.DashboardSnapshot{}, fmt.Errorf("list subjects: %w", err)
	}
	byID := make(map[string]store.Subject, len(subjects))
	for _, s := range subjects {
		byID[s.ID] = s
	}

	latest := make(map[string]types.EventKind)
	for _, r := range recs {
		latest[r.SubjectID] = r.Kind
	}

	snap := types.DashboardSnapshot{
		TotalRecords:   len(recs),
		UniqueSubjects: len(latest),
		Recent:         []types.AttendanceView{},
		GeneratedAt:    now.Format(time.RFC3339),
	}
	for _, s := range subjects {
		if !s.Active {
			continue
		}
		if latest[s.ID] == types.KindEntry {
			snap.Inside++
		} else {
			snap.Outside++
		}
	}
	for i := len(recs) - 1; i >= 0 && len(snap.Recent) < recentLimit; i-- {
		snap.Recent = append(snap.Recent, d.view(recs[i], byID[recs[i].SubjectID]))
	}
	if d.session != nil {
		snap.Connected = d.session.Connected()
		snap.Monitoring = d.session.Monitoring()
	}
	return snap, nil
}

// ScheduleInfo returns the subject's records for today and, on a
// multi-segment schedule, the expected checkpoints. The next expected
// checkpoint is picked by how many records exist so far.
func (d *Dashboard) ScheduleInfo(ctx context.Context, subjectID string) (types.ScheduleInfo, error) {
	sub, ok, err := d.directory.Lookup(ctx, subjectID)
	if err != nil {
		return types.ScheduleInfo{}, err
	}
	if !ok {
		return types.ScheduleInfo{}, ErrSubjectNotFound
	}

	now := d.clock.Now().In(d.loc)
	day := now.Format(store.DayLayout)
	recs, err := d.records.RecordsOnDay(ctx, sub.ID, day)
	if err != nil {
		return types.ScheduleInfo{}, fmt.Errorf("records on day: %w", err)
	}

	info := types.ScheduleInfo{
		Subject: d.directory.View(sub),
		Day:     day,
		Records: make([]types.AttendanceView, 0, len(recs)),
	}
	for _, r := range recs {
		info.Records = append(info.Records, d.view(r, sub))
	}

	if info.Subject.Schedule == types.ScheduleMultiSegment {
		info.Checkpoints = Checkpoints(now.Weekday(), d.lastWeekday)
		if n := len(recs); n < len(info.Checkpoints) {
			next := info.Checkpoints[n]
			info.NextExpected = &next
		}
	}
	return info, nil
}

func (d *Dashboard) view(r store.Record, s store.Subject) types.AttendanceView {
	return types.AttendanceView{
		ID:         r.ID,
		SubjectID:  r.SubjectID,
		Name:       s.Name,
		Department: s.Department,
		Kind:       r.Kind,
		OccurredAt: r.OccurredAt.In(d.loc).Format(time.RFC3339),
		ReaderNo:   r.ReaderNo,
		Method:     r.Method,
		Outcome:    r.Outcome,
	}
}

// ── Refresher ────────────────────────────────────────────────────────────────

// Refresher republishes a dashboard snapshot after notifications that
// change it. Bursts collapse into a single refresh.
type Refresher struct {
	dashboard *Dashboard
	target    publish.Publisher
	kick      chan struct{}
	logger    zerolog.Logger
}

func NewRefresher(d *Dashboard, target publish.Publisher, logger zerolog.Logger) *Refresher {
	return &Refresher{
		dashboard: d,
		target:    target,
		kick:      make(chan struct{}, 1),
		logger:    logger.With().Str("component", "dashboard").Logger(),
	}
}

// Publish never blocks.
func (r *Refresher) Publish(n publish.Notification) {
	switch n.Name {
	case publish.AttendanceRecord, publish.NewSubjectCreated, publish.ConnectionStatus:
	default:
		return
	}
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run refreshes until ctx ends.
func (r *Refresher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.kick:
			snap, err := r.dashboard.Snapshot(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Warn().Err(err).Msg("dashboard refresh failed")
				}
				continue
			}
			r.target.Publish(publish.Notification{
				Name: publish.DashboardUpdate,
				At:   r.dashboard.clock.Now(),
				Data: snap,
			})
		}
	}
}
