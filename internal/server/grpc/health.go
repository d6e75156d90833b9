// Package grpcserver runs the operational gRPC endpoint (grpc.health.v1).
package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the API.
const ServiceName = "plaze.v1.Auth"

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewOpsServer builds a gRPC server exposing the standard health service
// behind the recover and logging interceptors. Every service starts NOT_SERVING.
func NewOpsServer(log *zap.Logger, reflect bool) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
		grpc.ChainStreamInterceptor(
			RecoverStream(log),
			LoggingStream(log),
		),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	if reflect {
		reflection.Register(s)
	}
	return s, hs
}

// WatchStore pings the store every interval and mirrors the result into hs
// until ctx is done. On return everything is marked NOT_SERVING.
func WatchStore(ctx context.Context, hs *health.Server, store Pinger, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	last := healthpb.HealthCheckResponse_UNKNOWN
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		err := store.Ping(pctx)
		cancel()

		st := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if st != last {
			if err != nil {
				log.Warn("store_unhealthy", zap.Error(err))
			} else {
				log.Info("store_healthy")
			}
			last = st
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(ServiceName, st)
	}

	check()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			check()
		}
	}
}
