package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/clock"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/device"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/event"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/portunus/frame"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/publish"
)

var (
	ErrAlreadyRunning = errors.New("monitor already running")
	ErrNotRunning     = errors.New("monitor not running")

	// errStreamClosed is returned when the device ends the stream cleanly.
	errStreamClosed = fmt.Errorf("stream closed by device: %w", io.ErrUnexpectedEOF)
)

// StreamSource is the device side of the supervisor.
type StreamSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Probe(ctx context.Context) error
}

type SupervisorConfig struct {
	// BaseDelay is the backoff added per consecutive failure, up to
	// MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// MaxRetries failures in a row trigger a Cooldown pause, after which
	// the count starts over.
	MaxRetries int
	Cooldown   time.Duration

	// LivenessWindow is how long the stream may stay silent before the
	// device is probed.
	LivenessWindow time.Duration

	ChunkSize int
	Framing   frame.Config
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 5 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.LivenessWindow <= 0 {
		c.LivenessWindow = 30 * time.Second
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1024
	}
	return c
}

// Supervisor owns the device stream: it connects, extracts and decodes
// frames, hands events to the processor one at a time, and reconnects
// with backoff. At most one monitoring loop runs per Supervisor.
type Supervisor struct {
	cfg       SupervisorConfig
	source    StreamSource
	decoder   *event.Decoder
	processor *Processor
	publisher publish.Publisher
	clock     clock.Clock
	logger    zerolog.Logger
	session   Session

	// extractor is owned by the run goroutine and reset per connection.
	extractor *frame.Extractor

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSupervisor(
	cfg SupervisorConfig,
	source StreamSource,
	decoder *event.Decoder,
	processor *Processor,
	pub publish.Publisher,
	clk clock.Clock,
	logger zerolog.Logger,
) *Supervisor {
	if pub == nil {
		pub = publish.Discard
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Supervisor{
		cfg:       cfg.withDefaults(),
		source:    source,
		decoder:   decoder,
		processor: processor,
		publisher: pub,
		clock:     clk,
		logger:    logger.With().Str("component", "monitor").Logger(),
		extractor: frame.NewExtractor(cfg.Framing),
	}
}

func (s *Supervisor) Session() *Session { return &s.session }

func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Start launches the monitoring loop. It returns ErrAlreadyRunning if a
// loop is active. The loop ends when ctx is cancelled or Stop is called.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.session.setMonitoring(true)

	go func() {
		defer close(done)
		s.run(ctx)

		s.mu.Lock()
		if s.done == done {
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	s.logger.Info().Dur("liveness", s.cfg.LivenessWindow).Msg("monitoring started")
	return nil
}

// Stop ends the monitoring loop and waits for it to exit. An event that
// is already past the duplicate guard is finished first.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return ErrNotRunning
	}
	cancel()
	<-done
	return nil
}

func (s *Supervisor) run(ctx context.Context) {
	defer func() {
		s.session.setState(StateDisconnected)
		s.session.setMonitoring(false)
		s.publish(publish.ConnectionStatus, publish.ConnectionPayload{Reason: "monitoring stopped"})
		s.logger.Info().Msg("monitoring stopped")
	}()

	failures := 0
	for ctx.Err() == nil {
		s.session.setState(StateConnecting)
		s.session.attempt()

		err := s.stream(ctx, &failures)
		if ctx.Err() != nil {
			return
		}

		failures++
		s.session.setFailures(failures)
		s.session.setState(StateBackingOff)
		cat := device.Classify(err)

		if failures > s.cfg.MaxRetries {
			s.logger.Error().Err(err).
				Str("category", cat.String()).
				Int("failures", failures).
				Dur("cooldown", s.cfg.Cooldown).
				Msg("device unreachable, pausing")
			s.publish(publish.ConnectionStatus, publish.ConnectionPayload{
				Attempt:  failures,
				Reason:   err.Error(),
				Category: cat.String(),
			})
			if !s.sleep(ctx, s.cfg.Cooldown) {
				return
			}
			failures = 0
			s.session.setFailures(0)
			continue
		}

		delay := BackoffDelay(failures, s.cfg.BaseDelay, s.cfg.MaxDelay)
		ev := s.logger.Warn()
		if cat == device.CategoryAuth {
			ev = s.logger.Error()
		}
		ev.Err(err).
			Str("category", cat.String()).
			Int("attempt", failures).
			Int("max", s.cfg.MaxRetries).
			Dur("retry_in", delay).
			Msg("device stream failed")
		s.publish(publish.ConnectionStatus, publish.ConnectionPayload{
			Retrying: true,
			Attempt:  failures,
			Reason:   err.Error(),
			Category: cat.String(),
		})
		if !s.sleep(ctx, delay) {
			return
		}
	}
}

// stream runs one connection until it fails or ctx ends. It always
// returns a non-nil error.
func (s *Supervisor) stream(ctx context.Context, failures *int) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	body, err := s.source.Open(connCtx)
	if err != nil {
		return err
	}
	defer body.Close()

	s.session.setState(StateStreaming)
	s.publish(publish.ConnectionStatus, publish.ConnectionPayload{Connected: true, Attempt: *failures})
	s.logger.Info().Int("after_failures", *failures).Msg("device stream connected")

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, s.cfg.ChunkSize)
		for {
			n, err := body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-connCtx.Done():
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = errStreamClosed
				}
				readErr <- err
				return
			}
		}
	}()

	extractor := s.extractor
	extractor.Reset()
	ticker := s.clock.NewTicker(s.cfg.LivenessWindow)
	defer ticker.Stop()
	lastFrame := s.clock.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return err

		case chunk := <-chunks:
			overflows := extractor.Overflows()
			for _, f := range extractor.Feed(chunk) {
				// Frames left in the chunk after Stop are not processed.
				if err := ctx.Err(); err != nil {
					return err
				}
				lastFrame = s.clock.Now()
				s.session.frame(lastFrame)
				if *failures > 0 {
					s.restored(*failures, lastFrame)
					*failures = 0
					s.session.setFailures(0)
				}
				s.handle(ctx, f)
			}
			if n := extractor.Overflows(); n > overflows {
				s.logger.Warn().Int("overflows", n).Msg("frame buffer overflow, resynchronised")
			}

		case <-ticker.C:
			idle := s.clock.Now().Sub(lastFrame)
			if idle < s.cfg.LivenessWindow {
				continue
			}
			if err := s.source.Probe(ctx); err != nil {
				return fmt.Errorf("%w after %s idle: %v", device.ErrStale, idle.Truncate(time.Second), err)
			}
			s.logger.Debug().Dur("idle", idle).Msg("stream idle, device responding")
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, f []byte) {
	ev := s.decoder.Decode(f)
	if ev.Skip() {
		return
	}
	res, err := s.processor.Handle(ctx, ev)
	s.session.count(res, err)
	if err != nil {
		s.logger.Error().Err(err).
			Str("subject", ev.SubjectID).
			Str("kind", ev.Kind.String()).
			Msg("event dropped")
	}
}

func (s *Supervisor) restored(after int, at time.Time) {
	s.logger.Info().Int("after_failures", after).Msg("device connection restored")
	s.publish(publish.ConnectionRestored, publish.RestoredPayload{
		AfterFailures: after,
		Timestamp:     at.Format(TimestampLayout),
	})
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}

func (s *Supervisor) publish(name publish.Name, data any) {
	s.publisher.Publish(publish.Notification{Name: name, At: s.clock.Now(), Data: data})
}
