package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/gemdesk/backend/internal/model/persona"
	"github.com/zhouzirui/gemdesk/backend/internal/model/settings"
	"github.com/zhouzirui/gemdesk/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/gemdesk/backend/internal/service/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/service/conversation"
)

type staticSettings struct{ value settings.Settings }

func (s staticSettings) Get() settings.Settings { return s.value }

type echoGateway struct{}

func (echoGateway) Converse(_ context.Context, req ai.ConverseRequest) (*ai.ConverseResult, error) {
	return &ai.ConverseResult{Text: "echo: " + req.Message}, nil
}

func setupRouter(cfg settings.Settings) (*chi.Mux, *chatservice.Service) {
	sessions := chatservice.NewService(nil, nil)
	ctrl := conversation.NewController(sessions, echoGateway{}, nil, persona.NewMemoryStore(persona.Seed()), "gemini-2.5-flash", nil)
	handler := New(ctrl, staticSettings{cfg})

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, sessions
}

func withKey() settings.Settings {
	return settings.Settings{Credentials: []settings.Credential{{ID: "c1", Secret: "key"}}}
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSendCreatesSession(t *testing.T) {
	r, sessions := setupRouter(withKey())

	resp := post(r, "/chat/send", `{"text":"hello there"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Success bool              `json:"success"`
		Data    conversation.Turn `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || len(body.Data.Session.Messages) != 2 {
		t.Fatalf("unexpected turn: %+v", body)
	}
	if body.Data.Session.Messages[1].Content != "echo: hello there" {
		t.Fatalf("unexpected reply %q", body.Data.Session.Messages[1].Content)
	}
	if len(sessions.List()) != 1 {
		t.Fatalf("expected one session")
	}
}

func TestSendWithoutCredential(t *testing.T) {
	r, sessions := setupRouter(settings.Settings{})

	resp := post(r, "/chat/send", `{"text":"hello"}`)
	if resp.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", resp.Code)
	}
	if len(sessions.List()) != 0 {
		t.Fatalf("expected no session")
	}
}

func TestSendEmptyMessage(t *testing.T) {
	r, _ := setupRouter(withKey())

	resp := post(r, "/chat/send", `{"text":"  "}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestRetryRequiresIndex(t *testing.T) {
	r, _ := setupRouter(withKey())
	post(r, "/chat/send", `{"text":"hello"}`)

	if resp := post(r, "/chat/retry", `{}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if resp := post(r, "/chat/retry", `{"index":0}`); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRetryWithoutActiveSession(t *testing.T) {
	r, _ := setupRouter(withKey())

	if resp := post(r, "/chat/retry", `{"index":0}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
