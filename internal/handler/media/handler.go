package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/gemdesk/backend/internal/handler/apierr"
	"github.com/zhouzirui/gemdesk/backend/internal/handler/bridge"
	"github.com/zhouzirui/gemdesk/backend/internal/media"
	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/platform"
)

// Handler 媒体缓存的HTTP处理器
type Handler struct {
	cache     *media.Cache
	clipboard platform.Clipboard
	logger    *zap.Logger
}

// New 创建媒体处理器
func New(cache *media.Cache, clipboard platform.Clipboard, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{cache: cache, clipboard: clipboard, logger: logger}
}

// SaveRequest 保存媒体请求：uri为data:内联编码，或data为base64原始字节
type SaveRequest struct {
	URI      string `json:"uri,omitempty"`
	Data     string `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

type refRequest struct {
	Ref string `json:"ref"`
}

type downloadRequest struct {
	Ref         string `json:"ref"`
	Destination string `json:"destination"`
}

// RegisterRoutes 注册媒体相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	ops := h.Ops()
	r.Get("/media", bridge.HTTP(ops["media.list"], http.StatusOK))
	r.Post("/media", bridge.HTTP(ops["media.save"], http.StatusCreated))
	r.Delete("/media", bridge.HTTP(ops["media.deleteAll"], http.StatusOK))
	r.Post("/media/delete", bridge.HTTP(ops["media.delete"], http.StatusOK))
	r.Post("/media/download", bridge.HTTP(ops["media.download"], http.StatusOK))
	r.Post("/media/copy", bridge.HTTP(ops["media.copy"], http.StatusOK))
	r.Get("/media/{name}", h.handleResolve)
}

// Ops 返回可通过桥接调用的操作
func (h *Handler) Ops() map[string]bridge.Op {
	return map[string]bridge.Op{
		"media.list":      h.list,
		"media.save":      h.save,
		"media.delete":    h.delete,
		"media.deleteAll": h.deleteAll,
		"media.download":  h.download,
		"media.copy":      h.copy,
	}
}

// handleResolve 返回缓存文件内容
func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	data, mimeType, err := h.cache.Resolve(chi.URLParam(r, "name"))
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("media_response_aborted", zap.Error(err))
	}
}

func (h *Handler) list(context.Context, json.RawMessage) (any, error) {
	return h.cache.List()
}

func (h *Handler) save(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[SaveRequest](payload)
	if err != nil {
		return nil, err
	}
	if req.URI != "" {
		return h.cache.StoreInline(chat.MediaRef{URI: req.URI, MIMEType: req.MIMEType})
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(req.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: data is not base64", apierr.ErrInvalidPayload)
	}
	return h.cache.Store(data, req.MIMEType)
}

func (h *Handler) delete(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[refRequest](payload)
	if err != nil {
		return nil, err
	}
	if err := h.cache.Delete(req.Ref); err != nil {
		return nil, err
	}
	return map[string]string{"deleted": req.Ref}, nil
}

func (h *Handler) deleteAll(context.Context, json.RawMessage) (any, error) {
	if err := h.cache.DeleteAll(); err != nil {
		return nil, err
	}
	return map[string]bool{"cleared": true}, nil
}

func (h *Handler) download(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[downloadRequest](payload)
	if err != nil {
		return nil, err
	}
	path, err := h.cache.Export(req.Ref, req.Destination)
	if err != nil {
		return nil, err
	}
	return map[string]string{"path": path}, nil
}

// copy 将图片写入系统剪贴板，视频退回为本地路径文本
func (h *Handler) copy(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[refRequest](payload)
	if err != nil {
		return nil, err
	}
	data, mimeType, err := h.cache.Resolve(req.Ref)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mimeType, "video/") {
		img, err := media.ToPNG(data, mimeType)
		if err != nil {
			return nil, err
		}
		if err := h.clipboard.WriteImage(img); err != nil {
			return nil, err
		}
		return map[string]string{"copied": "image", "mimeType": "image/png"}, nil
	}

	path, err := h.cache.Path(req.Ref)
	if err != nil {
		return nil, err
	}
	if err := h.clipboard.WriteText(path); err != nil {
		return nil, err
	}
	return map[string]string{"copied": "path", "path": path}, nil
}
