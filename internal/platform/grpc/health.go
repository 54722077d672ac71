// Package grpc holds client-side helpers shared by SafeZone gRPC callers.
package grpc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthBackoffStart = 200 * time.Millisecond
	healthBackoffMax   = time.Second
)

// WaitForHealth polls the health service until service reports SERVING or ctx
// ends. A nil logger is treated as zap.NewNop.
func WaitForHealth(ctx context.Context, conn gogrpc.ClientConnInterface, service string, logger *zap.Logger) error {
	if conn == nil {
		return fmt.Errorf("gRPC connection is not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := grpc_health_v1.NewHealthClient(conn)
	backoff := healthBackoffStart
	for {
		callCtx, cancel := context.WithTimeout(ctx, healthBackoffMax)
		response, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		switch {
		case err != nil:
			logger.Debug("waiting for gRPC health", zap.String("service", service), zap.Error(err))
		case response.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING:
			logger.Debug("gRPC health is SERVING", zap.String("service", service))
			return nil
		default:
			logger.Debug("waiting for gRPC health", zap.String("service", service), zap.Stringer("status", response.GetStatus()))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for gRPC health: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, healthBackoffMax)
	}
}
