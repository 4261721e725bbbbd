package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/third-eye/overseer/pkg/envelope"
	"github.com/third-eye/overseer/pkg/store"
)

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWS_SubscribeReceivesSnapshotAndLiveEvents(t *testing.T) {
	s, st := newTestServer(t)
	seedKey(t, st, "sk-test", store.RoleConsumer, "")
	id := createSession(t, s, "sk-test", CreateSessionRequest{})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/ws/pipeline/"+id+"?api_key=sk-test"), nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	msg := readWS(t, conn)
	assert.Equal(t, "connection.established", msg["type"])

	msg = readWS(t, conn)
	assert.Equal(t, "settings.snapshot", msg["type"])
	assert.Equal(t, "enterprise", msg["profile"])

	// An Eye invocation over HTTP shows up on the stream.
	code, _ := invokeEye(t, s, "sk-test", envelope.ToolNavigator, eyeBody(id, "", ""))
	require.Equal(t, http.StatusOK, code)

	msg = readWS(t, conn)
	assert.Equal(t, "eye_update", msg["type"])
	assert.Equal(t, "overseer/navigator", msg["eye"])
	assert.Equal(t, "OK_OVERSEER_GUIDE", msg["code"])
}

func TestWS_RequiresValidKeyAndScope(t *testing.T) {
	s, st := newTestServer(t)
	seedKey(t, st, "sk-ops", store.RoleConsumer, "ops")
	seedKey(t, st, "sk-other", store.RoleConsumer, "other")
	id := createSession(t, s, "sk-ops", CreateSessionRequest{Tenant: "ops"})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(srv, "/ws/pipeline/"+id), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, wsURL(srv, "/ws/pipeline/"+id+"?api_key=sk-other"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
