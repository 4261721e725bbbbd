package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/third-eye/overseer/pkg/pipeline"
	"github.com/third-eye/overseer/pkg/policy"
	"github.com/third-eye/overseer/pkg/store"
)

// errorBody is the uniform error response: HTTP status + {detail}.
type errorBody struct {
	Detail string `json:"detail"`
}

// orderBody is the pipeline ordering rejection: HTTP 409 with the session's
// current allowlist so the host can self-correct.
type orderBody struct {
	Message      string   `json:"message"`
	ExpectedNext []string `json:"expected_next"`
}

// writeError renders any handler error as its JSON response. Policy denials
// carry their own status; ordering violations map to 409 with the expected
// set; store misses map to 404. Everything else is a 500 that never leaks
// internals.
func writeError(c *echo.Context, err error) error {
	var ooo *pipeline.OutOfOrderError
	if errors.As(err, &ooo) {
		expected := make([]string, len(ooo.Expected))
		for i, t := range ooo.Expected {
			expected[i] = string(t)
		}
		return c.JSON(http.StatusConflict, &orderBody{
			Message:      "Tool call out of pipeline order",
			ExpectedNext: expected,
		})
	}

	var den *policy.DeniedError
	if errors.As(err, &den) {
		return c.JSON(den.Status, &errorBody{Detail: den.Detail})
	}

	if errors.Is(err, store.ErrNotFound) {
		return c.JSON(http.StatusNotFound, &errorBody{Detail: "Session not found"})
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		detail := http.StatusText(he.Code)
		if he.Message != "" {
			detail = he.Message
		}
		return c.JSON(he.Code, &errorBody{Detail: detail})
	}

	slog.Error("unhandled request error",
		"method", c.Request().Method, "path", c.Request().URL.Path, "error", err)
	return c.JSON(http.StatusInternalServerError, &errorBody{Detail: "internal server error"})
}
