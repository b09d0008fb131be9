// Package handlers provides the HTTP and gRPC servers of the task API,
// bridging the transport layer and the task service.
package handlers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gartstein/eagle/internal/taskmgr/auth"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server holds references to both a gRPC server and an HTTP server. The
// gRPC side serves the standard health service; the task API is HTTP.
type Server struct {
	grpcServer   *grpc.Server
	httpServer   *http.Server
	health       *health.Server
	logger       *zap.Logger
	grpcEndpoint string
	httpEndpoint string
}

// NewServer constructs a Server with separate endpoints for gRPC and HTTP.
func NewServer(
	grpcPort int,
	httpPort int,
	logger *zap.Logger,
	grpcOpts ...grpc.ServerOption,
) *Server {
	logger = logger.Named("server")
	grpcOpts = append(grpcOpts, grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))

	s := &Server{
		grpcServer:   grpc.NewServer(grpcOpts...),
		httpServer:   &http.Server{ReadHeaderTimeout: 10 * time.Second},
		health:       health.NewServer(),
		logger:       logger,
		grpcEndpoint: fmt.Sprintf(":%d", grpcPort),
		httpEndpoint: fmt.Sprintf(":%d", httpPort),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	return s
}

// RegisterHTTPHandlers mounts the task API behind the session middleware.
func (s *Server) RegisterHTTPHandlers(h *TaskHandler, jwtSecret string, revoker auth.Revoker) error {
	mux := runtime.NewServeMux()
	if err := h.Register(mux); err != nil {
		return err
	}

	// Wrap the mux with auth middleware
	authMiddleware := auth.HTTPMiddleware(mux, jwtSecret, revoker, s.logger)

	s.httpServer.Handler = requestLogger(s.logger)(authMiddleware)
	s.httpServer.Addr = s.httpEndpoint
	return nil
}

// Start runs the gRPC and HTTP servers concurrently, returning on the first error.
func (s *Server) Start() error {
	var wg sync.WaitGroup
	wg.Add(2)
	errChan := make(chan error, 2)

	// Start gRPC Server
	go func() {
		defer wg.Done()
		s.logger.Info("Starting gRPC server", zap.String("endpoint", s.grpcEndpoint))
		lis, err := net.Listen("tcp", s.grpcEndpoint)
		if err != nil {
			errChan <- fmt.Errorf("gRPC listen error: %w", err)
			return
		}
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		if err := s.grpcServer.Serve(lis); err != nil {
			errChan <- fmt.Errorf("gRPC serve error: %w", err)
		}
	}()

	// Start HTTP Server
	go func() {
		defer wg.Done()
		s.logger.Info("Starting HTTP server", zap.String("endpoint", s.httpEndpoint))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP serve error: %w", err)
		}
	}()

	go func() {
		wg.Wait()
		close(errChan)
	}()

	for err := range errChan {
		if err != nil {
			return err
		}
	}
	return nil
}

// Pinger is a dependency whose reachability decides readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WatchStore pings store every interval and reports the result through the
// gRPC health service: NOT_SERVING while pings fail, SERVING once they
// succeed again. It returns when ctx is done.
func (s *Server) WatchStore(ctx context.Context, store Pinger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pingCtx, cancel := context.WithTimeout(ctx, interval)
		err := store.Ping(pingCtx)
		cancel()

		switch {
		case err != nil && healthy:
			s.logger.Warn("store unreachable, reporting NOT_SERVING", zap.Error(err))
			s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			healthy = false
		case err == nil && !healthy:
			s.logger.Info("store reachable again, reporting SERVING")
			s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			healthy = true
		}
	}
}

// Stop gracefully shuts down both gRPC and HTTP servers.
func (s *Server) Stop() {
	s.logger.Info("Shutting down servers...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	s.logger.Info("Servers stopped")
}
