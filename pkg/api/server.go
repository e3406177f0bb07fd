package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/procflow/procflow/pkg/api/handler"
	"github.com/procflow/procflow/pkg/telemetry"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns the default server settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      "0.0.0.0:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

// Server serves the HTTP API.
type Server struct {
	facade     handler.Facade
	tel        *telemetry.Telemetry
	config     ServerConfig
	version    string
	httpServer *http.Server
	logger     *telemetry.Logger
}

// NewServer creates a Server.
func NewServer(facade handler.Facade, tel *telemetry.Telemetry, cfg ServerConfig, version string) *Server {
	if tel == nil {
		tel = telemetry.NewNopTelemetry()
	}
	return &Server{
		facade:  facade,
		tel:     tel,
		config:  cfg,
		version: version,
		logger:  tel.Logger.NewComponentLogger("api"),
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           SetupRouter(s.facade, s.tel, s.version),
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("address", ln.Addr().String()).Info("API server listening")
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.logger.Info("API server stopped")
		return nil
	}
}
