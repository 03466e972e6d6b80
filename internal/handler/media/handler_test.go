package media

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/gemdesk/backend/internal/media"
	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
)

type memClipboard struct {
	text  string
	image []byte
}

func (c *memClipboard) WriteText(text string) error {
	c.text = text
	return nil
}

func (c *memClipboard) WriteImage(png []byte) error {
	c.image = png
	return nil
}

func setupRouter(t *testing.T) (*chi.Mux, *media.Cache, *memClipboard) {
	t.Helper()
	cache, err := media.NewCache(t.TempDir(), nil)
	require.NoError(t, err)
	clip := &memClipboard{}

	r := chi.NewRouter()
	New(cache, clip, nil).RegisterRoutes(r)
	return r, cache, clip
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(method, path, strings.NewReader(body)))
	return resp
}

func TestSaveAndResolve(t *testing.T) {
	r, _, _ := setupRouter(t)

	resp := serve(r, http.MethodPost, "/media", `{"uri":"data:image/png;base64,cGl4ZWxz"}`)
	require.Equal(t, http.StatusCreated, resp.Code)

	var body struct {
		Data chat.MediaRef `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, chat.MediaCache, body.Data.Kind())

	resp = serve(r, http.MethodGet, "/media/"+body.Data.CacheName(), "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "image/png", resp.Header().Get("Content-Type"))
	require.Equal(t, "pixels", resp.Body.String())
}

func TestResolveStatuses(t *testing.T) {
	r, _, _ := setupRouter(t)

	require.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/media/missing.png", "").Code)
	require.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/media/..%5Cescape.png", "").Code)
	require.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/media/notes.txt", "").Code)
}

func TestSaveRejectsBadBase64(t *testing.T) {
	r, _, _ := setupRouter(t)
	resp := serve(r, http.MethodPost, "/media", `{"data":"***","mimeType":"image/png"}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestListDeleteAndCopy(t *testing.T) {
	r, cache, clip := setupRouter(t)
	ref, err := cache.Store([]byte("a"), "image/png")
	require.NoError(t, err)
	video, err := cache.Store([]byte("b"), "video/mp4")
	require.NoError(t, err)

	resp := serve(r, http.MethodGet, "/media", "")
	require.Equal(t, http.StatusOK, resp.Code)
	var listed struct {
		Data []media.Item `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &listed))
	require.Len(t, listed.Data, 2)

	resp = serve(r, http.MethodPost, "/media/copy", `{"ref":"`+ref.URI+`"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, []byte("a"), clip.image)
	require.Empty(t, clip.text)

	resp = serve(r, http.MethodPost, "/media/copy", `{"ref":"`+video.URI+`"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, filepath.Join(cache.Dir(), video.CacheName()), clip.text)

	resp = serve(r, http.MethodPost, "/media/delete", `{"ref":"`+ref.URI+`"}`)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = serve(r, http.MethodDelete, "/media", "")
	require.Equal(t, http.StatusOK, resp.Code)
	items, err := cache.List()
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestDownloadRefusesArbitraryFiles(t *testing.T) {
	r, _, _ := setupRouter(t)

	resp := serve(r, http.MethodPost, "/media", `{"data":"IyEvYmluL3NoCmVjaG8gaGkK","mimeType":"image/png"}`)
	require.Equal(t, http.StatusCreated, resp.Code)
	var saved struct {
		Data chat.MediaRef `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &saved))

	home := t.TempDir()
	target := filepath.Join(home, ".bashrc")
	body, err := json.Marshal(map[string]string{"ref": saved.Data.URI, "destination": target})
	require.NoError(t, err)

	resp = serve(r, http.MethodPost, "/media/download", string(body))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	_, err = os.Stat(target)
	require.True(t, os.IsNotExist(err))
}

func TestCopyPlacesDecodedImageOnClipboard(t *testing.T) {
	r, cache, clip := setupRouter(t)

	var src bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	require.NoError(t, jpeg.Encode(&src, img, nil))
	ref, err := cache.Store(src.Bytes(), "image/jpeg")
	require.NoError(t, err)

	resp := serve(r, http.MethodPost, "/media/copy", `{"ref":"`+ref.URI+`"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), `"copied":"image"`)

	decoded, err := png.Decode(bytes.NewReader(clip.image))
	require.NoError(t, err)
	require.Equal(t, img.Bounds(), decoded.Bounds())
	require.Empty(t, clip.text)
}

func TestCopyRejectsCorruptImage(t *testing.T) {
	r, cache, clip := setupRouter(t)
	ref, err := cache.Store([]byte("not a jpeg"), "image/jpeg")
	require.NoError(t, err)

	resp := serve(r, http.MethodPost, "/media/copy", `{"ref":"`+ref.URI+`"}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Nil(t, clip.image)
}
