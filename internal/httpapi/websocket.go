package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/publish"
)

const wsWriteTimeout = 5 * time.Second

// handleWebSocket pushes every hub notification to the client. The client
// first receives the session status and a dashboard snapshot.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "stream_unavailable", "live stream unavailable")
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := s.hub.Subscribe(publish.DefaultBuffer)
	if err != nil {
		_ = conn.Close(websocket.StatusTryAgainLater, "shutting down")
		return
	}
	defer func() { _ = s.hub.Unsubscribe(sub.ID) }()

	log := s.logger.With().Str("subscriber", sub.ID).Logger()
	log.Debug().Msg("dashboard client connected")
	defer log.Debug().Msg("dashboard client disconnected")

	write := func(n publish.Notification) error {
		wctx, cancelWrite := context.WithTimeout(ctx, wsWriteTimeout)
		defer cancelWrite()
		return wsjson.Write(wctx, conn, n)
	}

	if err := write(publish.Notification{
		Name: publish.Status,
		At:   s.now(),
		Data: s.monitor.Session().Snapshot(s.now()),
	}); err != nil {
		return
	}
	if snap, err := s.dashboard.Snapshot(ctx); err == nil {
		if err := write(publish.Notification{Name: publish.DashboardUpdate, At: s.now(), Data: snap}); err != nil {
			return
		}
	} else {
		log.Warn().Err(err).Msg("initial dashboard snapshot failed")
	}

	// Clients do not send anything; reading surfaces their close frames.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case n, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := write(n); err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}
