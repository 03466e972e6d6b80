package persona

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/gemdesk/backend/internal/service/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/service/directory"
)

type fakeStarter struct{ started string }

func (f *fakeStarter) StartPersonaConversation(id string) (persona.Persona, error) {
	f.started = id
	return persona.Persona{ID: id}, nil
}

func setupRouter(t *testing.T) (*chi.Mux, *chatservice.Service, *fakeStarter) {
	t.Helper()
	sessions := chatservice.NewService(nil, nil)
	dir := directory.New(sessions, persona.NewMemoryStore(persona.Seed()), nil, nil)
	starter := &fakeStarter{}

	r := chi.NewRouter()
	New(dir, starter).RegisterRoutes(r)
	return r, sessions, starter
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestListGems(t *testing.T) {
	r, _, _ := setupRouter(t)
	resp := do(r, http.MethodGet, "/gems", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Data []persona.Persona `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Data, len(persona.Seed()))
}

func TestCreateUpdateGem(t *testing.T) {
	r, _, _ := setupRouter(t)

	resp := do(r, http.MethodPost, "/gems", `{"name":"Poet","icon":"pen","instruction":"Rhyme."}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	var created struct {
		Data persona.Persona `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)
	require.Equal(t, persona.IconPen, created.Data.Icon)

	resp = do(r, http.MethodPut, "/gems/"+created.Data.ID, `{"name":"Bard","icon":"book"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = do(r, http.MethodGet, "/gems/"+created.Data.ID, "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"Bard"`)

	resp = do(r, http.MethodPost, "/gems", `{"name":""}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDeleteGemCascades(t *testing.T) {
	r, sessions, _ := setupRouter(t)
	gem := persona.Seed()[0]
	sessions.Create(chat.Session{GemID: gem.ID})
	sessions.Create(chat.Session{})

	resp := do(r, http.MethodDelete, "/gems/"+gem.ID, "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, sessions.List(), 1)

	resp = do(r, http.MethodDelete, "/gems/"+gem.ID, "")
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestStartGemConversation(t *testing.T) {
	r, _, starter := setupRouter(t)
	resp := do(r, http.MethodPost, "/gems/abc/start", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "abc", starter.started)
}
