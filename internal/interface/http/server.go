// Package http exposes the evaluation platform over a JSON REST API.
//
// Every mutation runs the aggregate maintenance synchronously, so a
// successful response means the stored mediaGeral values already reflect it.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/avalia-hub/avalia-hub/internal/application/command"
	"github.com/avalia-hub/avalia-hub/internal/application/query"
	"github.com/avalia-hub/avalia-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// EnableCORS - enable CORS headers for AllowedOrigins.
	EnableCORS     bool
	AllowedOrigins []string

	// Debug exposes internal error messages in responses.
	Debug bool

	// DisableRequestLogs turns the access log off (tests).
	DisableRequestLogs bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Commands (write side)
	Evaluations *command.EvaluationHandler
	Assignments *command.AssignmentHandler
	Classes     *command.ClassHandler
	Students    *command.StudentHandler

	// Queries (read side)
	GetAssignment   *query.GetAssignmentHandler
	ListAssignments *query.ListAssignmentsByClassHandler
	GradeReport     *query.GradeReportHandler
	ListEvaluations *query.ListEvaluationsHandler
	ClassQueries    *query.ClassQueries
	StudentQueries  *query.StudentQueries

	// HealthChecks are probed by GET /health, keyed by component name.
	HealthChecks map[string]HealthChecker

	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config Config
	deps   Dependencies
	app    *echo.Echo
	logger *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	s := &Server{
		config: config,
		deps:   deps,
		app:    echo.New(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))

	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.Debug = s.config.Debug
	s.app.Validator = newRequestValidator()
	s.app.HTTPErrorHandler = newHTTPErrorHandler(s.logger)

	s.app.Server.ReadTimeout = s.config.ReadTimeout
	s.app.Server.WriteTimeout = s.config.WriteTimeout
	s.app.Server.IdleTimeout = s.config.IdleTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(requestIDMiddleware(s.logger))
	if !s.config.DisableRequestLogs {
		s.app.Use(accessLogMiddleware(s.logger))
	}
	s.app.Use(recoverMiddleware(s.logger))
	if s.config.EnableCORS {
		s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.config.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID},
			MaxAge:       86400,
		}))
	}

	s.setupRoutes()
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	s.app.GET("/health", s.handleHealth)

	registerAssignmentAPI(s.app.Group("/assignments"), s.deps)
	registerEvaluationAPI(s.app.Group("/evaluations"), s.deps)
	registerClassAPI(s.app.Group("/classes"), s.deps)
	registerStudentAPI(s.app.Group("/students"), s.deps)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.app.Start(s.config.Address())
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.app.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}
