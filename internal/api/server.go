// Package api provides the HTTP REST API for Tuya Core.
//
// It exposes firmware update orchestration, firmware cache management,
// and health endpoints to management UIs and automation.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zigmesh/tuya-core/internal/datapoint"
	"github.com/zigmesh/tuya-core/internal/firmware"
	"github.com/zigmesh/tuya-core/internal/infrastructure/config"
	"github.com/zigmesh/tuya-core/internal/infrastructure/logging"
	"github.com/zigmesh/tuya-core/internal/infrastructure/mqtt"
	"github.com/zigmesh/tuya-core/internal/update"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	Logger       *logging.Logger
	Mapper       *datapoint.Mapper
	Orchestrator *update.Orchestrator
	Firmware     *firmware.Repository
	Archiver     update.Archiver // If set, /updates/history reads the persistent archive
	MQTT         *mqtt.Client    // Optional: included in health reporting when present
	Version      string
}

// Server is the HTTP API server for Tuya Core.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	logger       *logging.Logger
	mapper       *datapoint.Mapper
	orchestrator *update.Orchestrator
	firmware     *firmware.Repository
	archiver     update.Archiver
	mqtt         *mqtt.Client
	version      string
	server       *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, orchestrator, firmware)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Mapper == nil {
		return nil, fmt.Errorf("datapoint mapper is required")
	}
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("update orchestrator is required")
	}
	if deps.Firmware == nil {
		return nil, fmt.Errorf("firmware repository is required")
	}

	return &Server{
		cfg:          deps.Config,
		logger:       deps.Logger,
		mapper:       deps.Mapper,
		orchestrator: deps.Orchestrator,
		firmware:     deps.Firmware,
		archiver:     deps.Archiver,
		mqtt:         deps.MQTT,
		version:      deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
