package health_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/BrandonDHaskell/Portunus/attendance/internal/health"
	"github.com/BrandonDHaskell/Portunus/attendance/internal/publish"
)

func TestReporter_FollowsConnectionStatus(t *testing.T) {
	srv := health.NewServer("127.0.0.1:0", zerolog.Nop())
	rep := health.NewReporter(srv.Health())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.ServeListener(ctx, lis) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		cctx, ccancel := context.WithTimeout(ctx, 5*time.Second)
		defer ccancel()
		resp, err := client.Check(cctx, &healthpb.HealthCheckRequest{Service: health.ServiceName})
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING before connecting, got %s", got)
	}

	rep.Publish(publish.Notification{Name: publish.ConnectionStatus, Data: publish.ConnectionPayload{Connected: true}})
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING when connected, got %s", got)
	}

	rep.Publish(publish.Notification{Name: publish.ConnectionStatus, Data: publish.ConnectionPayload{Retrying: true, Attempt: 1}})
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING while retrying, got %s", got)
	}

	// Unrelated notifications leave the status alone.
	rep.Publish(publish.Notification{Name: publish.AttendanceRecord})
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING, got %s", got)
	}
}
