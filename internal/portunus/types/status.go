package types

// SessionStatus is a point-in-time copy of the monitoring session.
type SessionStatus struct {
	Monitoring      bool   `json:"monitoring"`
	Connected       bool   `json:"connected"`
	State           string `json:"state"`
	Failures        int    `json:"failures"`
	Attempts        int    `json:"attempts"`
	LastActivity    string `json:"last_activity,omitempty"`
	FramesSeen      int64  `json:"frames_seen"`
	RecordsAppended int64  `json:"records_appended"`
	Duplicates      int64  `json:"duplicates"`
	DroppedEvents   int64  `json:"dropped_events"`
	ServerTime      string `json:"server_time"`
}

// DashboardSnapshot summarises the last 24 hours of attendance.
type DashboardSnapshot struct {
	TotalRecords   int              `json:"total_records"`
	UniqueSubjects int              `json:"unique_subjects"`
	Inside         int              `json:"inside"`
	Outside        int              `json:"outside"`
	Recent         []AttendanceView `json:"recent"`
	Connected      bool             `json:"connected"`
	Monitoring     bool             `json:"monitoring"`
	GeneratedAt    string           `json:"generated_at"`
}

// Checkpoint is one expected punch in a multi-segment day.
type Checkpoint struct {
	Label string    `json:"label"`
	At    string    `json:"at"` // HH:MM local time
	Kind  EventKind `json:"kind"`
}

// ScheduleInfo describes a subject's day so far.
type ScheduleInfo struct {
	Subject      SubjectView      `json:"subject"`
	Day          string           `json:"day"`
	Records      []AttendanceView `json:"records"`
	Checkpoints  []Checkpoint     `json:"checkpoints,omitempty"`
	NextExpected *Checkpoint      `json:"next_expected,omitempty"`
}

// JournalView is one journal entry as served to clients.
type JournalView struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	SubjectID  string `json:"subject_id,omitempty"`
	Method     string `json:"method,omitempty"`
	ReaderNo   int    `json:"reader_no,omitempty"`
	OccurredAt string `json:"occurred_at"`
	ReceivedAt string `json:"received_at"`
}

// JournalPage is a window of the event journal, oldest first.
type JournalPage struct {
	Since   string        `json:"since"`
	Entries []JournalView `json:"entries"`
}

// ProbeResponse reports the outcome of a device status probe.
type ProbeResponse struct {
	OK         bool   `json:"ok"`
	Category   string `json:"category,omitempty"`
	Error      string `json:"error,omitempty"`
	ServerTime string `json:"server_time"`
}
