// Package rpc exposes the standard gRPC health service for orchestrators
// that probe over gRPC instead of HTTP.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the overall
// ("") status.
const ServiceName = "leadbot.Chatbot"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds health server settings.
type Config struct {
	Interval    time.Duration
	PingTimeout time.Duration
}

// HealthServer serves grpc.health.v1 and keeps its status in step with the
// session store.
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	store  Pinger
	cfg    Config
	logger *slog.Logger
}

// NewHealthServer builds the server. Nothing is bound until Serve.
func NewHealthServer(store Pinger, cfg Config, logger *slog.Logger) *HealthServer {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    2 * time.Minute,
			Timeout: 10 * time.Second,
		}),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &HealthServer{srv: srv, health: hs, store: store, cfg: cfg, logger: logger}
}

// Check pings the store once and publishes the result.
func (h *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if h.store != nil {
		ctx, cancel := context.WithTimeout(ctx, h.cfg.PingTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
	return status
}

// Serve checks once, then serves on lis and re-checks every interval until
// ctx is cancelled.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	h.Check(ctx)

	go func() {
		ticker := time.NewTicker(h.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Check(ctx)
			}
		}
	}()

	h.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := h.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Shutdown marks everything NOT_SERVING and drains in-flight RPCs, forcing
// a stop when ctx expires first.
func (h *HealthServer) Shutdown(ctx context.Context) {
	h.health.Shutdown()

	done := make(chan struct{})
	go func() {
		h.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.srv.Stop()
	}
}
