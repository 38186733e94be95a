// Package server provides gRPC server lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/solatis/tradepromo/internal/core/api"
	"github.com/solatis/tradepromo/internal/core/auth"
	"github.com/solatis/tradepromo/internal/core/config"
	"github.com/solatis/tradepromo/internal/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 30 * time.Second

// GRPCServer manages the gRPC server and the metrics HTTP endpoint.
type GRPCServer struct {
	server        *grpc.Server
	health        *health.Server
	metricsServer *http.Server
	config        *config.Config
	logger        *slog.Logger
}

// NewGRPCServer creates the gRPC server with metrics, timeout and auth
// interceptors and registers the promotion and health services.
func NewGRPCServer(cfg *config.Config, service *api.PromotionService, authenticator *auth.Authenticator, m *metrics.Metrics, logger *slog.Logger) (*GRPCServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator cannot be nil")
	}
	if m == nil {
		return nil, fmt.Errorf("metrics cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Metrics first so rejected requests are counted too
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			m.UnaryServerInterceptor(),
			timeoutInterceptor(cfg.Server.RequestTimeout),
			authenticator.UnaryInterceptor(),
		),
	}
	if cfg.Server.MaxConnections > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(cfg.Server.MaxConnections)))
	}

	server := grpc.NewServer(opts...)
	server.RegisterService(&ServiceDesc, &promotionHandler{
		service:            service,
		stopOnFirstTrigger: cfg.Engine.StopOnFirstTrigger,
	})

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	s := &GRPCServer{
		server: server,
		health: healthServer,
		config: cfg,
		logger: logger,
	}
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		s.metricsServer = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return s, nil
}

// timeoutInterceptor bounds each request by d. Zero disables the bound.
func timeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if d <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(ctx, req)
	}
}

// Start binds the configured address and serves until Shutdown.
func (s *GRPCServer) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, fmt.Sprint(s.config.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve serves gRPC on listener and, if configured, metrics over HTTP.
// Blocks until Shutdown is called.
func (s *GRPCServer) Serve(listener net.Listener) error {
	if s.metricsServer != nil {
		go func() {
			s.logger.Info("metrics endpoint listening", "addr", s.metricsServer.Addr)
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}
	s.logger.Info("gRPC server listening", "addr", listener.Addr().String())
	return s.server.Serve(listener)
}

// Shutdown marks the server not serving and stops it gracefully, forcing
// a stop after 30 seconds or when ctx is done.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	if s.metricsServer != nil {
		mctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := s.metricsServer.Shutdown(mctx); err != nil {
			s.logger.Warn("metrics endpoint shutdown failed", "error", err)
		}
	}

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(shutdownTimeout):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}
