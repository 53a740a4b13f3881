package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dwrandle/automation-bridge/internal/board"
	"github.com/dwrandle/automation-bridge/internal/history"
	"github.com/dwrandle/automation-bridge/internal/infrastructure/config"
	"github.com/dwrandle/automation-bridge/internal/infrastructure/logging"
	"github.com/dwrandle/automation-bridge/internal/state"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Board is the board surface the API needs.
// Satisfied by board.Link.
type Board interface {
	SetRelay(index int, on bool) error
	SetOutput(index, value int) error
	Reset() error
	Connected() bool
	Capabilities() board.Capabilities
	Version() string
	PortName() string
}

// HealthReporter supplies component health for the health endpoint.
type HealthReporter interface {
	Health() map[string]any
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Board   Board
	Cache   *state.Cache
	History *history.Store // optional: history endpoints 404 without it
	Health  HealthReporter // optional: health endpoint reports api-only without it
	Version string
}

// Server is the bridge's HTTP API server.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	board   Board
	cache   *state.Cache
	store   *history.Store
	health  HealthReporter
	version string
	server  *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Board == nil {
		return nil, fmt.Errorf("board link is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("state cache is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		board:   deps.Board,
		cache:   deps.Cache,
		store:   deps.History,
		health:  deps.Health,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// The listener runs in a background goroutine; the server is stopped
// with Close().
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
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running.
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
