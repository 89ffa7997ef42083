// Package grpcserver exposes the standard gRPC health service so
// orchestrators and service meshes can probe the ledger without HTTP.
package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the health service entry reported alongside the overall
// server status.
const ServiceName = "ledger.v1.Ledger"

// Checker reports whether every dependency the service needs is reachable.
type Checker interface {
	Check(ctx context.Context) (map[string]string, bool)
}

type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	checker Checker
	log     *zap.Logger
}

func New(checker Checker, log *zap.Logger) *Server {
	gs := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              30 * time.Second,
			Timeout:           10 * time.Second,
		}),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpc: gs, health: hs, checker: checker, log: log}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// Refresh probes dependencies once and publishes the result.
func (s *Server) Refresh(ctx context.Context) bool {
	checks, healthy := s.checker.Check(ctx)
	if healthy {
		s.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.log.Warn("dependency check failed", zap.Any("checks", checks))
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return healthy
}

// Watch refreshes the status every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.probe(ctx, interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx, interval)
		}
	}
}

func (s *Server) probe(ctx context.Context, budget time.Duration) {
	probeCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	s.Refresh(probeCtx)
}

// Stop marks the service as shutting down and drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
