package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/third-eye/overseer/pkg/envelope"
	"github.com/third-eye/overseer/pkg/settings"
	"github.com/third-eye/overseer/pkg/store"
)

// scopedSession loads a session and enforces the key's tenant scope on it.
func (s *Server) scopedSession(c *echo.Context, key *store.APIKey, id string) (*store.Session, error) {
	if id == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}
	sess, err := s.store.GetSession(c.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if err := s.enforcer.CheckTenant(key, sess.Tenant); err != nil {
		return nil, err
	}
	return sess, nil
}

// createSessionHandler handles POST /session.
func (s *Server) createSessionHandler(c *echo.Context) error {
	key, err := s.authenticate(c)
	if err != nil {
		return writeError(c, err)
	}

	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "invalid request body"))
	}
	if err := s.enforcer.CheckTenant(key, req.Tenant); err != nil {
		return writeError(c, err)
	}

	profile := req.Profile
	if profile == "" {
		profile = settings.DefaultProfile
	}

	ctx := c.Request().Context()
	values, err := s.resolver.Resolve(ctx, profile, req.Overrides)
	if err != nil {
		return writeError(c, err)
	}

	now := time.Now().UTC()
	sess := &store.Session{
		ID:        uuid.New().String(),
		Tenant:    req.Tenant,
		Profile:   profile,
		Overrides: req.Overrides,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return writeError(c, err)
	}

	s.audit(ctx, auditRequest(c, key, "session.create", sess.ID, http.StatusOK, map[string]any{
		"profile": profile,
		"tenant":  req.Tenant,
	}))

	return c.JSON(http.StatusOK, &SessionResponse{
		SessionID: sess.ID,
		Profile:   profile,
		Settings:  values.Map(),
		Provider:  s.cfg.Provider,
		PortalURL: s.cfg.Portal.BaseURL + "/session/" + sess.ID,
	})
}

// listSessionsHandler handles GET /sessions.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	key, err := s.authenticate(c)
	if err != nil {
		return writeError(c, err)
	}

	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "limit must be in [1, 100]"))
		}
		limit = n
	}

	// Non-admin keys are confined to their own tenant scope; admins may
	// filter by any tenant or list across all of them.
	tenant := c.QueryParam("tenant")
	if key.Role != store.RoleAdmin {
		if tenant == "" {
			tenant = key.Tenant
		}
		if err := s.enforcer.CheckTenant(key, tenant); err != nil {
			return writeError(c, err)
		}
	}

	sessions, err := s.store.ListSessions(c.Request().Context(), tenant, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, &SessionListResponse{Sessions: sessions, Count: len(sessions)})
}

// getSessionHandler handles GET /sessions/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	key, err := s.authenticate(c)
	if err != nil {
		return writeError(c, err)
	}
	sess, err := s.scopedSession(c, key, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// updateSettingsHandler handles PUT /session/:id/settings. Admin only; the
// profile and override map are replaced wholesale and a settings_update
// event notifies subscribers.
func (s *Server) updateSettingsHandler(c *echo.Context) error {
	key, err := s.authenticate(c)
	if err != nil {
		return writeError(c, err)
	}
	if key.Role != store.RoleAdmin {
		return writeError(c, echo.NewHTTPError(http.StatusForbidden, "Admin role required"))
	}

	var req UpdateSettingsRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "invalid request body"))
	}
	profile := req.Profile
	if profile == "" {
		profile = settings.DefaultProfile
	}

	ctx := c.Request().Context()
	sess, err := s.scopedSession(c, key, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	values, err := s.resolver.Resolve(ctx, profile, req.Overrides)
	if err != nil {
		return writeError(c, err)
	}
	if err := s.store.UpdateSessionSettings(ctx, sess.ID, profile, req.Overrides); err != nil {
		return writeError(c, err)
	}

	evt := &store.PipelineEvent{
		SessionID: sess.ID,
		Type:      store.EventSettingsUpdate,
		MD:        "Session settings updated.",
		Data: map[string]any{
			"profile":  profile,
			"settings": values.Map(),
		},
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		return writeError(c, err)
	}

	s.audit(ctx, auditRequest(c, key, "session.settings_update", sess.ID, http.StatusOK, map[string]any{
		"profile": profile,
	}))

	return c.JSON(http.StatusOK, &SessionResponse{
		SessionID: sess.ID,
		Profile:   profile,
		Settings:  values.Map(),
		Provider:  s.cfg.Provider,
		PortalURL: s.cfg.Portal.BaseURL + "/session/" + sess.ID,
	})
}

// listEventsHandler handles GET /session/:id/events.
func (s *Server) listEventsHandler(c *echo.Context) error {
	key, err := s.authenticate(c)
	if err != nil {
		return writeError(c, err)
	}
	sess, err := s.scopedSession(c, key, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	filter := store.EventFilter{Limit: 50}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "limit must be in [1, 500]"))
		}
		filter.Limit = n
	}
	if v := c.QueryParam("from_ts"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "invalid from_ts: must be RFC3339"))
		}
		filter.FromTS = &t
	}
	if v := c.QueryParam("to_ts"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "invalid to_ts: must be RFC3339"))
		}
		filter.ToTS = &t
	}

	entries, err := s.store.ListEvents(c.Request().Context(), sess.ID, filter)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, &EventListResponse{Events: entries, Count: len(entries)})
}

// clarificationsHandler handles POST /session/:id/clarifications: the host
// relays the user's clarification answers into the journal.
func (s *Server) clarificationsHandler(c *echo.Context) error {
	key, err := s.authenticate(c)
	if err != nil {
		return writeError(c, err)
	}
	sess, err := s.scopedSession(c, key, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	var req ClarificationsRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "invalid request body"))
	}
	if req.AnswersMD == "" {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "answers_md is required"))
	}

	ctx := c.Request().Context()
	evt := &store.PipelineEvent{
		SessionID: sess.ID,
		Type:      store.EventUserInput,
		MD:        req.AnswersMD,
		Data:      map[string]any{"answers_md": req.AnswersMD},
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		return writeError(c, err)
	}

	s.audit(ctx, auditRequest(c, key, "session.clarifications", sess.ID, http.StatusOK, nil))
	return c.JSON(http.StatusOK, &AcceptedResponse{
		SessionID: sess.ID,
		EventID:   evt.ID,
		Type:      string(store.EventUserInput),
	})
}

// resubmitHandler handles POST /session/:id/resubmit: the host flags a named
// Eye stage for resubmission.
func (s *Server) resubmitHandler(c *echo.Context) error {
	key, err := s.authenticate(c)
	if err != nil {
		return writeError(c, err)
	}
	sess, err := s.scopedSession(c, key, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	var req ResubmitRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "invalid request body"))
	}
	tool := envelope.Tool(req.Eye)
	if !tool.IsValid() {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "unknown eye: "+req.Eye))
	}

	ctx := c.Request().Context()
	evt := &store.PipelineEvent{
		SessionID: sess.ID,
		Type:      store.EventResubmitRequested,
		Eye:       string(tool),
		MD:        "Resubmission requested for " + string(tool) + ".",
		Data:      map[string]any{"reason_md": req.ReasonMD},
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		return writeError(c, err)
	}

	s.audit(ctx, auditRequest(c, key, "session.resubmit", sess.ID, http.StatusOK, map[string]any{
		"eye": string(tool),
	}))
	return c.JSON(http.StatusOK, &AcceptedResponse{
		SessionID: sess.ID,
		EventID:   evt.ID,
		Type:      string(store.EventResubmitRequested),
	})
}

// duelHandler handles POST /session/:id/duel: two Eye verdicts are put side
// by side for operator comparison. The gateway only journals the request;
// running the duel is the portal's business.
func (s *Server) duelHandler(c *echo.Context) error {
	key, err := s.authenticate(c)
	if err != nil {
		return writeError(c, err)
	}
	sess, err := s.scopedSession(c, key, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	var req DuelRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "invalid request body"))
	}
	if len(req.Eyes) != 2 {
		return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "exactly two eyes are required"))
	}
	for _, eye := range req.Eyes {
		if !envelope.Tool(eye).IsValid() {
			return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "unknown eye: "+eye))
		}
	}

	ctx := c.Request().Context()
	evt := &store.PipelineEvent{
		SessionID: sess.ID,
		Type:      store.EventDuelRequested,
		MD:        "Duel requested: " + req.Eyes[0] + " vs " + req.Eyes[1] + ".",
		Data: map[string]any{
			"eyes":     req.Eyes,
			"topic_md": req.TopicMD,
		},
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		return writeError(c, err)
	}

	s.audit(ctx, auditRequest(c, key, "session.duel", sess.ID, http.StatusOK, map[string]any{
		"eyes": req.Eyes,
	}))
	return c.JSON(http.StatusOK, &AcceptedResponse{
		SessionID: sess.ID,
		EventID:   evt.ID,
		Type:      string(store.EventDuelRequested),
	})
}
