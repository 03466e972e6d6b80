package settings

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/gemdesk/backend/internal/handler/apierr"
	"github.com/zhouzirui/gemdesk/backend/internal/handler/bridge"
	model "github.com/zhouzirui/gemdesk/backend/internal/model/settings"
	"github.com/zhouzirui/gemdesk/backend/internal/platform"
	settingsservice "github.com/zhouzirui/gemdesk/backend/internal/service/settings"
	"github.com/zhouzirui/gemdesk/backend/pkg/utils"
)

// Handler 设置与平台信息的HTTP处理器
type Handler struct {
	svc *settingsservice.Service
}

// New 创建设置处理器
func New(svc *settingsservice.Service) *Handler {
	return &Handler{svc: svc}
}

type credentialRequest struct {
	Label    string         `json:"label"`
	Secret   string         `json:"secret"`
	Provider model.Provider `json:"provider,omitempty"`
}

type idRequest struct {
	ID string `json:"id"`
}

type modelRequest struct {
	Model string `json:"model"`
}

// RegisterRoutes 注册设置相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	ops := h.Ops()
	r.Get("/settings", bridge.HTTP(ops["settings.get"], http.StatusOK))
	r.Put("/settings", bridge.HTTP(ops["settings.save"], http.StatusOK))
	r.Put("/settings/model", bridge.HTTP(ops["settings.model"], http.StatusOK))
	r.Post("/settings/credentials", bridge.HTTP(ops["credentials.add"], http.StatusCreated))
	r.Post("/settings/credentials/active", bridge.HTTP(ops["credentials.activate"], http.StatusOK))
	r.Delete("/settings/credentials/{id}", h.handleRemoveCredential)
	r.Get("/platform", bridge.HTTP(ops["platform.id"], http.StatusOK))
}

// Ops 返回可通过桥接调用的操作
func (h *Handler) Ops() map[string]bridge.Op {
	return map[string]bridge.Op{
		"settings.get":         h.get,
		"settings.save":        h.save,
		"settings.model":       h.setModel,
		"credentials.add":      h.addCredential,
		"credentials.remove":   h.removeCredential,
		"credentials.activate": h.activateCredential,
		"platform.id":          h.platformID,
	}
}

func (h *Handler) handleRemoveCredential(w http.ResponseWriter, r *http.Request) {
	next, err := h.svc.RemoveCredential(chi.URLParam(r, "id"))
	if err != nil {
		apierr.Respond(w, err)
		return
	}
	utils.RespondOK(w, http.StatusOK, next.Redacted())
}

func (h *Handler) get(context.Context, json.RawMessage) (any, error) {
	return h.svc.Get().Redacted(), nil
}

func (h *Handler) save(_ context.Context, payload json.RawMessage) (any, error) {
	next, err := bridge.Decode[model.Settings](payload)
	if err != nil {
		return nil, err
	}
	return redacted(h.svc.Replace(next))
}

func (h *Handler) setModel(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[modelRequest](payload)
	if err != nil {
		return nil, err
	}
	return redacted(h.svc.SetActiveModel(req.Model))
}

func (h *Handler) addCredential(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[credentialRequest](payload)
	if err != nil {
		return nil, err
	}
	cred, err := h.svc.AddCredential(req.Label, req.Secret, req.Provider)
	if err != nil {
		return nil, err
	}
	return cred.Redacted(), nil
}

func (h *Handler) removeCredential(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[idRequest](payload)
	if err != nil {
		return nil, err
	}
	return redacted(h.svc.RemoveCredential(req.ID))
}

func (h *Handler) activateCredential(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[idRequest](payload)
	if err != nil {
		return nil, err
	}
	return redacted(h.svc.SetActiveCredential(req.ID))
}

// redacted 去掉返回给界面的凭据密钥
func redacted(v model.Settings, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v.Redacted(), nil
}

func (h *Handler) platformID(context.Context, json.RawMessage) (any, error) {
	return map[string]string{"platform": platform.ID()}, nil
}
