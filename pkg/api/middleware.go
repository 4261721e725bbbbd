package api

import (
	"log/slog"
	"time"

	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}

// requestLogger returns middleware that logs one line per completed request.
// Health probes are skipped to keep the log readable.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			path := c.Request().URL.Path
			if path == "/health/live" || path == "/health/ready" {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			status := 0
			if res, uerr := echo.UnwrapResponse(c.Response()); uerr == nil {
				status = res.Status
			}
			slog.Info("request handled",
				"method", c.Request().Method,
				"path", path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return err
		}
	}
}
