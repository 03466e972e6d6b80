package persona

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/gemdesk/backend/internal/handler/apierr"
	"github.com/zhouzirui/gemdesk/backend/internal/handler/bridge"
	"github.com/zhouzirui/gemdesk/backend/internal/model/persona"
	"github.com/zhouzirui/gemdesk/backend/internal/service/directory"
	"github.com/zhouzirui/gemdesk/backend/pkg/utils"
)

// Starter 开启绑定persona的新会话
type Starter interface {
	StartPersonaConversation(personaID string) (persona.Persona, error)
}

// Handler persona服务的HTTP处理器
type Handler struct {
	dir     *directory.Directory
	starter Starter
}

// New 创建persona处理器
func New(dir *directory.Directory, starter Starter) *Handler {
	return &Handler{dir: dir, starter: starter}
}

type idRequest struct {
	ID string `json:"id"`
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	ops := h.Ops()
	r.Get("/gems", bridge.HTTP(ops["gems.list"], http.StatusOK))
	r.Post("/gems", bridge.HTTP(ops["gems.save"], http.StatusCreated))
	r.Get("/gems/{id}", h.handleGet)
	r.Put("/gems/{id}", h.withID(ops["gems.save"], http.StatusOK))
	r.Delete("/gems/{id}", h.withID(ops["gems.delete"], http.StatusOK))
	r.Post("/gems/{id}/start", h.withID(ops["gems.start"], http.StatusOK))
}

// Ops 返回可通过桥接调用的操作
func (h *Handler) Ops() map[string]bridge.Op {
	return map[string]bridge.Op{
		"gems.list":   h.list,
		"gems.save":   h.save,
		"gems.delete": h.delete,
		"gems.start":  h.start,
	}
}

// handleGet 获取单个persona
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.dir.GetPersona(chi.URLParam(r, "id"))
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondOK(w, http.StatusOK, p)
}

// withID 将路径中的id合并进请求体
func (h *Handler) withID(op bridge.Op, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				utils.RespondError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		body["id"] = chi.URLParam(r, "id")
		payload, _ := json.Marshal(body)

		data, err := op(r.Context(), payload)
		if err != nil {
			apierr.Respond(w, err)
			return
		}
		utils.RespondOK(w, status, data)
	}
}

func (h *Handler) list(context.Context, json.RawMessage) (any, error) {
	return h.dir.ListPersonas(), nil
}

func (h *Handler) save(_ context.Context, payload json.RawMessage) (any, error) {
	p, err := bridge.Decode[persona.Persona](payload)
	if err != nil {
		return nil, err
	}
	return h.dir.SavePersona(p)
}

func (h *Handler) delete(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[idRequest](payload)
	if err != nil {
		return nil, err
	}
	if err := h.dir.DeletePersona(req.ID); err != nil {
		return nil, err
	}
	return map[string]string{"deleted": req.ID}, nil
}

func (h *Handler) start(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[idRequest](payload)
	if err != nil {
		return nil, err
	}
	return h.starter.StartPersonaConversation(req.ID)
}
