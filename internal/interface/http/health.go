package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avalia-hub/avalia-hub/pkg/logger"
)

// HealthChecker is a dependency probed by the health endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// Ping calls f.
func (f HealthCheckFunc) Ping(ctx context.Context) error { return f(ctx) }

type healthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

const healthCheckTimeout = 2 * time.Second

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.deps.HealthChecks))
	for name := range s.deps.HealthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ok"}
	if up := s.Uptime(); up > 0 {
		resp.Uptime = up.Round(time.Second).String()
	}
	code := http.StatusOK
	for _, name := range names {
		if resp.Checks == nil {
			resp.Checks = make(map[string]string, len(names))
		}
		if err := s.deps.HealthChecks[name].Ping(ctx); err != nil {
			s.logger.Warn("health check failed", logger.String("check", name), logger.Err(err))
			resp.Checks[name] = "down"
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	return c.JSON(code, resp)
}
