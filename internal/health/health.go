// Package health exposes device stream connectivity over the standard
// gRPC health checking protocol.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/publish"
)

// ServiceName is the health service reporting the device stream.
const ServiceName = "portunus.attendance.DeviceStream"

// Reporter is a publish.Publisher that mirrors connection notifications
// into a health server: SERVING while the stream is connected.
type Reporter struct {
	health *grpchealth.Server
}

func NewReporter(h *grpchealth.Server) *Reporter {
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Reporter{health: h}
}

func (r *Reporter) Publish(n publish.Notification) {
	switch n.Name {
	case publish.ConnectionStatus:
		p, ok := n.Data.(publish.ConnectionPayload)
		if !ok {
			return
		}
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if p.Connected {
			status = healthpb.HealthCheckResponse_SERVING
		}
		r.health.SetServingStatus(ServiceName, status)
	case publish.ConnectionRestored:
		r.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	}
}

// Server is a gRPC server carrying only the health service.
type Server struct {
	addr   string
	grpc   *grpc.Server
	health *grpchealth.Server
	logger zerolog.Logger
}

func NewServer(addr string, logger zerolog.Logger) *Server {
	h := grpchealth.NewServer()
	g := grpc.NewServer()
	healthpb.RegisterHealthServer(g, h)
	return &Server{
		addr:   addr,
		grpc:   g,
		health: h,
		logger: logger.With().Str("component", "grpc_health").Logger(),
	}
}

func (s *Server) Health() *grpchealth.Server { return s.health }

// Serve listens on the configured address until ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx ends.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			s.grpc.GracefulStop()
		case <-stop:
		}
	}()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health listening")
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
