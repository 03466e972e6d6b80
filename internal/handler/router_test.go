package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/gemdesk/backend/internal/media"
	"github.com/zhouzirui/gemdesk/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/gemdesk/backend/internal/service/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/gemdesk/backend/internal/service/directory"
	settingsservice "github.com/zhouzirui/gemdesk/backend/internal/service/settings"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cache, err := media.NewCache(t.TempDir(), nil)
	require.NoError(t, err)

	personas := persona.NewMemoryStore(persona.Seed())
	sessions := chatservice.NewService(nil, nil)
	ctrl := conversation.NewController(sessions, nil, cache, personas, "gemini-2.5-flash", nil)

	return NewRouter(Deps{
		Controller:     ctrl,
		Directory:      directory.New(sessions, personas, cache, nil),
		Settings:       settingsservice.NewService(nil, "", "gemini-2.5-flash", nil),
		Media:          cache,
		AllowedOrigins: []string{"app://gemdesk"},
	})
}

func TestBridgeListsEveryOp(t *testing.T) {
	r := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/bridge/ops", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Success bool     `json:"success"`
		Data    []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.True(t, body.Success)
	for _, op := range []string{
		"chat.send", "chat.retry", "chat.edit", "chat.model",
		"sessions.list", "sessions.delete", "gems.save", "gems.start",
		"media.save", "media.list", "media.delete", "media.deleteAll", "media.download", "media.copy",
		"generate.image", "generate.video", "models.list",
		"settings.get", "credentials.add", "platform.id",
	} {
		require.Contains(t, body.Data, op)
	}
}

func TestForeignOriginRejected(t *testing.T) {
	r := newTestRouter(t)

	for _, method := range []string{http.MethodGet, http.MethodOptions} {
		req := httptest.NewRequest(method, "/api/settings", nil)
		req.Header.Set("Origin", "https://evil.example")
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)

		require.Equal(t, http.StatusForbidden, resp.Code, method)
		require.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"), method)
		require.NotContains(t, resp.Body.String(), "credentials", method)
	}
}

func TestAllowedOriginPreflight(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat/send", nil)
	req.Header.Set("Origin", "app://gemdesk")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNoContent, resp.Code)
	require.Equal(t, "app://gemdesk", resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestWithoutOriginAllowed(t *testing.T) {
	r := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestStreamRejectsGet(t *testing.T) {
	r := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/stream?message=hello", nil))
	require.Equal(t, http.StatusMethodNotAllowed, resp.Code)
}

func TestSessionsRouteMounted(t *testing.T) {
	r := newTestRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/sessions/missing", nil))
	require.Equal(t, http.StatusNotFound, resp.Code)
}
