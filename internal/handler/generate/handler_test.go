package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/model/settings"
	"github.com/zhouzirui/gemdesk/backend/internal/service/ai"
)

type fakeGenerator struct {
	kind   ai.MediaKind
	apiKey string
	model  string
	prompt string
	opts   ai.GenerateOptions
}

func (f *fakeGenerator) Generate(_ context.Context, kind ai.MediaKind, apiKey, modelID, prompt string, opts ai.GenerateOptions) (*ai.Generated, error) {
	if apiKey == "" {
		return nil, ai.ErrMissingCredential
	}
	f.kind, f.apiKey, f.model, f.prompt, f.opts = kind, apiKey, modelID, prompt, opts
	return &ai.Generated{Ref: chat.NewCacheRef("1_abc.png", "image/png"), Model: "imagen-4.0-generate-001"}, nil
}

func (f *fakeGenerator) ListModels(_ context.Context, apiKey string) ([]ai.ModelInfo, error) {
	if apiKey == "" {
		return nil, ai.ErrMissingCredential
	}
	return []ai.ModelInfo{{Name: "gemini-2.5-flash"}}, nil
}

type staticSettings settings.Settings

func (s staticSettings) Get() settings.Settings { return settings.Settings(s) }

func setupRouter(cfg settings.Settings) (*chi.Mux, *fakeGenerator) {
	gen := &fakeGenerator{}
	r := chi.NewRouter()
	New(gen, staticSettings(cfg)).RegisterRoutes(r)
	return r, gen
}

func TestGenerateVideoUsesActiveCredential(t *testing.T) {
	cfg := settings.Settings{Credentials: []settings.Credential{{ID: "c1", Secret: "k-1"}}}
	r, gen := setupRouter(cfg)

	body := `{"prompt":"waves at dusk","model":"veo-3.0-generate-001","aspectRatio":"16:9","negativePrompt":"people"}`
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/generate/video", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, ai.KindVideo, gen.kind)
	require.Equal(t, "k-1", gen.apiKey)
	require.Equal(t, "veo-3.0-generate-001", gen.model)
	require.Equal(t, "16:9", gen.opts.AspectRatio)
	require.Equal(t, "people", gen.opts.NegativePrompt)
}

func TestGenerateWithoutCredential(t *testing.T) {
	r, _ := setupRouter(settings.Settings{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/generate/image", strings.NewReader(`{"prompt":"cat"}`)))
	require.Equal(t, http.StatusPreconditionFailed, resp.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, false, body["success"])
}

func TestListModels(t *testing.T) {
	r, _ := setupRouter(settings.Settings{Credentials: []settings.Credential{{ID: "c1", Secret: "k"}}})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/models", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "gemini-2.5-flash")
}
