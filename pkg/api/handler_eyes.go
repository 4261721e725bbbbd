package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/third-eye/overseer/pkg/envelope"
	"github.com/third-eye/overseer/pkg/eyes"
	"github.com/third-eye/overseer/pkg/store"
)

// eyeHandler returns the POST /eyes/{tool} handler for one Eye. The
// admission chain runs in fixed order: key (with rate limit), tenant, tool
// allow-list, budget reservation, pipeline position. Only then does the Eye
// run; its verdict always comes back as HTTP 200 with ok/code in the
// envelope.
func (s *Server) eyeHandler(tool envelope.Tool) echo.HandlerFunc {
	return func(c *echo.Context) error {
		key, err := s.authenticate(c)
		if err != nil {
			return writeError(c, err)
		}

		var req envelope.Request
		if err := c.Bind(&req); err != nil {
			return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "invalid request body"))
		}
		if req.Context.SessionID == "" {
			return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "context.session_id is required"))
		}
		if req.Context.Lang == "" {
			req.Context.Lang = envelope.LangAuto
		}
		if !req.Context.Lang.IsValid() {
			return writeError(c, echo.NewHTTPError(http.StatusBadRequest, "context.lang must be auto, en or ar"))
		}

		if err := s.enforcer.CheckTenant(key, req.Context.Tenant); err != nil {
			return writeError(c, s.auditDenied(c, key, tool, req.Context.SessionID, err))
		}
		if err := s.enforcer.CheckTool(key, tool); err != nil {
			return writeError(c, s.auditDenied(c, key, tool, req.Context.SessionID, err))
		}

		ctx := c.Request().Context()
		if err := s.enforcer.ReserveBudget(ctx, key, req.Context.BudgetTokens); err != nil {
			return writeError(c, s.auditDenied(c, key, tool, req.Context.SessionID, err))
		}

		// Rejections past this point must hand the reservation back: rejected
		// calls consume no budget.
		refund := func(err error) error {
			if rerr := s.enforcer.RefundBudget(ctx, key.ID, req.Context.BudgetTokens); rerr != nil {
				slog.Warn("failed to refund budget reservation", "key_id", key.ID, "error", rerr)
			}
			return err
		}

		sess, err := s.scopedSession(c, key, req.Context.SessionID)
		if err != nil {
			return writeError(c, refund(err))
		}

		version, err := s.machine.Check(ctx, sess.ID, tool)
		if err != nil {
			return writeError(c, refund(s.auditDenied(c, key, tool, sess.ID, err)))
		}

		values, err := s.resolver.Resolve(ctx, sess.Profile, sess.Overrides)
		if err != nil {
			return writeError(c, refund(err))
		}
		req.Context.Settings = values.Map()

		resp := eyes.Run(tool, &req)

		// The pipeline advances regardless of the verdict; a lost CAS means a
		// concurrent call won and this one is out of order after all.
		if err := s.machine.Advance(ctx, sess.ID, version, tool); err != nil {
			return writeError(c, refund(s.auditDenied(c, key, tool, sess.ID, err)))
		}

		ok := resp.OK
		evt := &store.PipelineEvent{
			SessionID:   sess.ID,
			Type:        store.EventEyeUpdate,
			Eye:         string(tool),
			OK:          &ok,
			Code:        string(resp.Code),
			ToolVersion: tool.Version(),
			MD:          resp.MD,
			Data:        resp.Data,
		}
		if err := s.publisher.Publish(ctx, evt); err != nil {
			return writeError(c, err)
		}

		s.audit(ctx, auditRequest(c, key, "eye.invoke", sess.ID, http.StatusOK, map[string]any{
			"tool":          string(tool),
			"branch":        string(tool.Branch()),
			"code":          string(resp.Code),
			"ok":            resp.OK,
			"budget_tokens": req.Context.BudgetTokens,
		}))

		return c.JSON(http.StatusOK, resp)
	}
}

// auditDenied records a rejected tool attempt and passes the error through.
func (s *Server) auditDenied(c *echo.Context, key *store.APIKey, tool envelope.Tool, sessionID string, err error) error {
	s.audit(c.Request().Context(), auditRequest(c, key, "eye.denied", sessionID, 0, map[string]any{
		"tool":   string(tool),
		"branch": string(tool.Branch()),
		"reason": err.Error(),
	}))
	return err
}
