package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/clock"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/device"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/types"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/publish"
)

// Monitor controls the device stream. *service.Supervisor implements it.
type Monitor interface {
	Start(ctx context.Context) error
	Stop() error
	Session() *service.Session
}

// Prober tests device reachability. *device.Client implements it.
type Prober interface {
	Probe(ctx context.Context) error
}

type Dependencies struct {
	Logger    zerolog.Logger
	Addr      string
	Monitor   Monitor
	Prober    Prober
	Dashboard *service.Dashboard
	Hub       *publish.Hub
	Clock     clock.Clock

	// Journal and MQTT are optional; nil disables /v1/journal and the
	// mqtt section of /v1/delivery.
	Journal store.Journal
	MQTT    *publish.MQTTSink

	// BaseContext outlives requests; the monitor started over HTTP runs
	// under it. Defaults to context.Background.
	BaseContext context.Context
}

type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
	router     chi.Router
	monitor    Monitor
	prober     Prober
	dashboard  *service.Dashboard
	hub        *publish.Hub
	journal    store.Journal
	mqtt       *publish.MQTTSink
	clock      clock.Clock
	base       context.Context
}

func NewServer(d Dependencies) *Server {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.BaseContext == nil {
		d.BaseContext = context.Background()
	}

	s := &Server{
		logger:    d.Logger.With().Str("component", "http").Logger(),
		router:    chi.NewRouter(),
		monitor:   d.Monitor,
		prober:    d.Prober,
		dashboard: d.Dashboard,
		hub:       d.Hub,
		journal:   d.Journal,
		mqtt:      d.MQTT,
		clock:     d.Clock,
		base:      d.BaseContext,
	}

	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/monitoring/start", s.handleMonitoringStart)
		r.Post("/monitoring/stop", s.handleMonitoringStop)
		r.Post("/device/probe", s.handleProbe)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/subjects/{id}/schedule", s.handleSchedule)
		r.Get("/journal", s.handleJournal)
		r.Get("/delivery", s.handleDelivery)
		r.Get("/ws", s.handleWebSocket)
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) now() time.Time { return s.clock.Now() }

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, s.monitor.Session().Snapshot(s.now()))
}

func (s *Server) handleMonitoringStart(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.Start(s.base); err != nil {
		if errors.Is(err, service.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, "already_running", err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("monitor start failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	respond(w, r, http.StatusAccepted, s.monitor.Session().Snapshot(s.now()))
}

func (s *Server) handleMonitoringStop(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.Stop(); err != nil {
		if errors.Is(err, service.ErrNotRunning) {
			writeError(w, http.StatusConflict, "not_running", err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("monitor stop failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	respond(w, r, http.StatusOK, s.monitor.Session().Snapshot(s.now()))
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	resp := types.ProbeResponse{OK: true}
	if err := s.prober.Probe(r.Context()); err != nil {
		resp.OK = false
		resp.Category = device.Classify(err).String()
		resp.Error = err.Error()
		s.logger.Warn().Err(err).Str("category", resp.Category).Msg("device probe failed")
	}
	resp.ServerTime = s.now().Format(time.RFC3339Nano)
	respond(w, r, http.StatusOK, resp)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, err := s.dashboard.Snapshot(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("dashboard snapshot failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	respond(w, r, http.StatusOK, snap)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	info, err := s.dashboard.ScheduleInfo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, service.ErrSubjectNotFound) {
			writeError(w, http.StatusNotFound, "subject_not_found", err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("schedule info failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	respond(w, r, http.StatusOK, info)
}

const (
	defaultJournalLimit = 100
	maxJournalLimit     = 1000
)

// handleJournal lists journal entries received at or after ?since=
// (RFC 3339, default 24h ago), up to ?limit= entries.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "journal_disabled", "the event journal is not configured")
		return
	}

	since := s.now().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since", "since must be an RFC 3339 timestamp")
			return
		}
		since = t
	}
	limit := defaultJournalLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxJournalLimit)
	}

	entries, err := s.journal.List(r.Context(), since, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("journal list failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	page := types.JournalPage{
		Since:   since.Format(time.RFC3339),
		Entries: make([]types.JournalView, 0, len(entries)),
	}
	for _, e := range entries {
		page.Entries = append(page.Entries, types.JournalView{
			ID:         e.ID,
			Kind:       e.Kind,
			SubjectID:  e.SubjectID,
			Method:     e.Method,
			ReaderNo:   e.ReaderNo,
			OccurredAt: e.OccurredAt.Format(time.RFC3339),
			ReceivedAt: e.ReceivedAt.Format(time.RFC3339Nano),
		})
	}
	respond(w, r, http.StatusOK, page)
}

type deliveryStats struct {
	Hub  publish.HubStats   `json:"hub"`
	MQTT *publish.MQTTStats `json:"mqtt,omitempty"`
}

// handleDelivery reports notification fan-out counters.
func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	st := deliveryStats{Hub: s.hub.Stats()}
	if s.mqtt != nil {
		m := s.mqtt.Stats()
		st.MQTT = &m
	}
	respond(w, r, http.StatusOK, st)
}
