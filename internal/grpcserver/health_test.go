package grpcserver

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type switchChecker struct {
	healthy atomic.Bool
}

func (c *switchChecker) Check(context.Context) (map[string]string, bool) {
	if c.healthy.Load() {
		return map[string]string{"store": "healthy"}, true
	}
	return map[string]string{"store": "unhealthy: down"}, false
}

func status(t *testing.T, s *Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.health.Check(t.Context(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	checker := &switchChecker{}
	s := New(checker, zap.NewNop())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s, ""))

	checker.healthy.Store(true)
	assert.True(t, s.Refresh(t.Context()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, s, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, s, ServiceName))

	checker.healthy.Store(false)
	assert.False(t, s.Refresh(t.Context()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, s, ServiceName))
}

func TestWatch_StopsWithContext(t *testing.T) {
	t.Parallel()

	checker := &switchChecker{}
	checker.healthy.Store(true)
	s := New(checker, zap.NewNop())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		s.Watch(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return status(t, s, "") == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not return after cancel")
	}
}
