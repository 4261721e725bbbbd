package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/third-eye/overseer/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// liveHandler handles GET /health/live. Liveness only reports that the
// process serves requests; dependency state belongs to readiness.
func (s *Server) liveHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  healthStatusHealthy,
		Version: version.GitCommit,
		TS:      time.Now().UTC(),
	})
}

// readyHandler handles GET /health/ready: every registered dependency probe
// must pass within the deadline.
func (s *Server) readyHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := healthStatusHealthy
	checks := make(map[string]HealthCheck, len(s.readiness))
	for name, check := range s.readiness {
		if err := check(reqCtx); err != nil {
			status = healthStatusUnhealthy
			checks[name] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
			continue
		}
		checks[name] = HealthCheck{Status: healthStatusHealthy}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		TS:      time.Now().UTC(),
		Checks:  checks,
	})
}
