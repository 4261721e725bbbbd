package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// wsHandler handles GET /ws/pipeline/:id. Auth and tenant scope are checked
// before the upgrade; after it the ConnectionManager owns the connection
// until the client disconnects.
func (s *Server) wsHandler(c *echo.Context) error {
	key, err := s.authenticate(c)
	if err != nil {
		return writeError(c, err)
	}
	sess, err := s.scopedSession(c, key, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}

	values, err := s.resolver.Resolve(c.Request().Context(), sess.Profile, sess.Overrides)
	if err != nil {
		return writeError(c, err)
	}

	if s.connManager == nil {
		return writeError(c, echo.NewHTTPError(http.StatusServiceUnavailable, "WebSocket not available"))
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	// HandleSession blocks until the WebSocket closes.
	s.connManager.HandleSession(c.Request().Context(), conn, sess, values.Map())
	return nil
}
