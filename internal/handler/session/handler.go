package session

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/gemdesk/backend/internal/handler/apierr"
	"github.com/zhouzirui/gemdesk/backend/internal/handler/bridge"
	"github.com/zhouzirui/gemdesk/backend/internal/service/directory"
	"github.com/zhouzirui/gemdesk/backend/pkg/utils"
)

// Handler 会话目录的HTTP处理器
type Handler struct {
	dir *directory.Directory
}

// New 创建会话处理器
func New(dir *directory.Directory) *Handler {
	return &Handler{dir: dir}
}

type renameRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type idRequest struct {
	ID string `json:"id"`
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	ops := h.Ops()
	r.Get("/sessions", bridge.HTTP(ops["sessions.list"], http.StatusOK))
	r.Get("/sessions/{id}", h.handleGet)
	r.Patch("/sessions/{id}", h.handleRename)
	r.Delete("/sessions/{id}", h.handleDelete)
}

// Ops 返回可通过桥接调用的操作
func (h *Handler) Ops() map[string]bridge.Op {
	return map[string]bridge.Op{
		"sessions.list":   h.list,
		"sessions.get":    h.get,
		"sessions.rename": h.rename,
		"sessions.delete": h.delete,
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.dir.GetSession(chi.URLParam(r, "id"))
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondOK(w, http.StatusOK, sess)
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := h.dir.RenameSession(chi.URLParam(r, "id"), req.Title)
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondOK(w, http.StatusOK, sess)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.dir.DeleteSession(id); err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondOK(w, http.StatusOK, map[string]string{"deleted": id})
}

func (h *Handler) list(context.Context, json.RawMessage) (any, error) {
	return h.dir.ListSessions(), nil
}

func (h *Handler) get(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[idRequest](payload)
	if err != nil {
		return nil, err
	}
	return h.dir.GetSession(req.ID)
}

func (h *Handler) rename(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[renameRequest](payload)
	if err != nil {
		return nil, err
	}
	return h.dir.RenameSession(req.ID, req.Title)
}

func (h *Handler) delete(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[idRequest](payload)
	if err != nil {
		return nil, err
	}
	if err := h.dir.DeleteSession(req.ID); err != nil {
		return nil, err
	}
	return map[string]string{"deleted": req.ID}, nil
}
