package service

import (
	"sync/atomic"
	"time"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
)

// State is the connection supervisor's position in its state machine.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateBackingOff
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackingOff:
		return "backing_off"
	default:
		return "disconnected"
	}
}

// Session holds the monitoring task's observable state. The monitor is
// the only writer; any goroutine may read.
type Session struct {
	monitoring   atomic.Bool
	state        atomic.Int32
	failures     atomic.Int32
	attempts     atomic.Int64
	lastActivity atomic.Int64 // unix nanos, 0 = never

	frames     atomic.Int64
	records    atomic.Int64
	duplicates atomic.Int64
	dropped    atomic.Int64
}

func (s *Session) Monitoring() bool { return s.monitoring.Load() }
func (s *Session) State() State     { return State(s.state.Load()) }
func (s *Session) Failures() int    { return int(s.failures.Load()) }
func (s *Session) Connected() bool  { return s.State() == StateStreaming }

func (s *Session) setMonitoring(v bool) { s.monitoring.Store(v) }
func (s *Session) setState(st State)    { s.state.Store(int32(st)) }
func (s *Session) setFailures(n int)    { s.failures.Store(int32(n)) }
func (s *Session) attempt()             { s.attempts.Add(1) }

func (s *Session) frame(at time.Time) {
	s.frames.Add(1)
	s.lastActivity.Store(at.UnixNano())
}

func (s *Session) count(r Result, err error) {
	switch {
	case err != nil, r == ResultDropped:
		s.dropped.Add(1)
	case r == ResultRecorded:
		s.records.Add(1)
	case r == ResultDuplicate:
		s.duplicates.Add(1)
	}
}

// LastActivity returns when the last frame arrived, or the zero time.
func (s *Session) LastActivity() time.Time {
	n := s.lastActivity.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Snapshot copies the session for status reporting.
func (s *Session) Snapshot(now time.Time) types.SessionStatus {
	st := types.SessionStatus{
		Monitoring:      s.Monitoring(),
		Connected:       s.Connected(),
		State:           s.State().String(),
		Failures:        s.Failures(),
		Attempts:        int(s.attempts.Load()),
		FramesSeen:      s.frames.Load(),
		RecordsAppended: s.records.Load(),
		Duplicates:      s.duplicates.Load(),
		DroppedEvents:   s.dropped.Load(),
		ServerTime:      now.Format(time.RFC3339Nano),
	}
	if t := s.LastActivity(); !t.IsZero() {
		st.LastActivity = t.In(now.Location()).Format(time.RFC3339Nano)
	}
	return st
}
