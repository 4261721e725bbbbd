// Package api is the HTTP and WebSocket surface of the Overseer gateway:
// Eye tool endpoints, session management, the pipeline event feed, and
// health probes. Every authenticated endpoint runs the policy admission
// chain before touching a store.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/third-eye/overseer/pkg/config"
	"github.com/third-eye/overseer/pkg/envelope"
	"github.com/third-eye/overseer/pkg/events"
	"github.com/third-eye/overseer/pkg/pipeline"
	"github.com/third-eye/overseer/pkg/policy"
	"github.com/third-eye/overseer/pkg/settings"
	"github.com/third-eye/overseer/pkg/store"
)

// Server wires the gateway's request-processing core behind the HTTP surface.
type Server struct {
	cfg         *config.Config
	store       store.Store
	enforcer    *policy.Enforcer
	machine     *pipeline.Machine
	resolver    *settings.Resolver
	publisher   events.Publisher
	connManager *events.ConnectionManager

	readiness map[string]func(context.Context) error

	e          *echo.Echo
	httpServer *http.Server
}

// NewServer builds the server and registers all routes.
func NewServer(
	cfg *config.Config,
	st store.Store,
	enforcer *policy.Enforcer,
	machine *pipeline.Machine,
	resolver *settings.Resolver,
	publisher events.Publisher,
	connManager *events.ConnectionManager,
) *Server {
	s := &Server{
		cfg:         cfg,
		store:       st,
		enforcer:    enforcer,
		machine:     machine,
		resolver:    resolver,
		publisher:   publisher,
		connManager: connManager,
		readiness:   make(map[string]func(context.Context) error),
	}

	s.e = echo.New()
	s.e.Use(securityHeaders())
	s.e.Use(requestLogger())
	s.registerRoutes()
	return s
}

// AddReadinessCheck registers a named dependency probe for /health/ready.
func (s *Server) AddReadinessCheck(name string, check func(context.Context) error) {
	s.readiness[name] = check
}

func (s *Server) registerRoutes() {
	e := s.e

	e.GET("/health/live", s.liveHandler)
	e.GET("/health/ready", s.readyHandler)

	e.POST("/session", s.createSessionHandler)
	e.GET("/sessions", s.listSessionsHandler)
	e.GET("/sessions/:id", s.getSessionHandler)
	e.PUT("/session/:id/settings", s.updateSettingsHandler)
	e.GET("/session/:id/events", s.listEventsHandler)
	e.POST("/session/:id/clarifications", s.clarificationsHandler)
	e.POST("/session/:id/resubmit", s.resubmitHandler)
	e.POST("/session/:id/duel", s.duelHandler)

	for _, tool := range envelope.Tools() {
		e.POST("/eyes/"+string(tool), s.eyeHandler(tool))
	}

	e.GET("/ws/pipeline/:id", s.wsHandler)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// authenticate resolves the API key from the X-API-Key header (or the
// api_key query parameter for WebSocket clients that cannot set headers)
// and runs the rate limit.
func (s *Server) authenticate(c *echo.Context) (*store.APIKey, error) {
	secret := c.Request().Header.Get("X-API-Key")
	if secret == "" {
		secret = c.QueryParam("api_key")
	}
	return s.enforcer.Authenticate(c.Request().Context(), secret)
}

// audit appends a journal record. Appends are non-critical: failures are
// logged and swallowed so they never fail the request.
func (s *Server) audit(ctx context.Context, rec *store.AuditRecord) {
	if err := s.store.AppendAudit(ctx, rec); err != nil {
		slog.Warn("audit append failed", "action", rec.Action, "error", err)
	}
}

// auditRequest builds the per-attempt audit record for one handled call.
func auditRequest(c *echo.Context, key *store.APIKey, action, sessionID string, status int, meta map[string]any) *store.AuditRecord {
	rec := &store.AuditRecord{
		Action:    action,
		SessionID: sessionID,
		IP:        c.Request().RemoteAddr,
		Metadata: map[string]any{
			"method": c.Request().Method,
			"path":   c.Request().URL.Path,
			"status": status,
		},
	}
	if key != nil {
		rec.Actor = key.ID
		rec.TenantID = key.Tenant
		rec.Metadata["role"] = string(key.Role)
	}
	for k, v := range meta {
		rec.Metadata[k] = v
	}
	rec.Target = fmt.Sprintf("%s %s", c.Request().Method, c.Request().URL.Path)
	return rec
}
