package chat

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/gemdesk/backend/internal/handler/bridge"
	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/model/settings"
	"github.com/zhouzirui/gemdesk/backend/internal/service/conversation"
)

// SettingsSource 提供调用时的设置快照
type SettingsSource interface {
	Get() settings.Settings
}

// Handler 聊天会话控制器的HTTP处理器
type Handler struct {
	ctrl     *conversation.Controller
	settings SettingsSource
}

// New 创建聊天处理器
func New(ctrl *conversation.Controller, settings SettingsSource) *Handler {
	return &Handler{ctrl: ctrl, settings: settings}
}

// SendRequest 发送消息请求
type SendRequest struct {
	Text        string          `json:"text"`
	Attachments []chat.MediaRef `json:"attachments,omitempty"`
}

type indexRequest struct {
	Index *int `json:"index"`
}

type modelRequest struct {
	Model string `json:"model"`
}

type selectRequest struct {
	SessionID string `json:"sessionId"`
}

type draftRequest struct {
	Text string `json:"text"`
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	ops := h.Ops()
	r.Get("/chat/state", bridge.HTTP(ops["chat.state"], http.StatusOK))
	r.Post("/chat/send", bridge.HTTP(ops["chat.send"], http.StatusOK))
	r.Post("/chat/retry", bridge.HTTP(ops["chat.retry"], http.StatusOK))
	r.Post("/chat/edit", bridge.HTTP(ops["chat.edit"], http.StatusOK))
	r.Post("/chat/model", bridge.HTTP(ops["chat.model"], http.StatusOK))
	r.Post("/chat/new", bridge.HTTP(ops["chat.new"], http.StatusOK))
	r.Post("/chat/select", bridge.HTTP(ops["chat.select"], http.StatusOK))
	r.Post("/chat/draft", bridge.HTTP(ops["chat.draft"], http.StatusOK))
}

// Ops 返回可通过桥接调用的操作
func (h *Handler) Ops() map[string]bridge.Op {
	return map[string]bridge.Op{
		"chat.state":  h.state,
		"chat.send":   h.send,
		"chat.stream": h.send,
		"chat.retry":  h.retry,
		"chat.edit":   h.edit,
		"chat.model":  h.changeModel,
		"chat.new":    h.newConversation,
		"chat.select": h.selectSession,
		"chat.draft":  h.setDraft,
	}
}

func (h *Handler) state(context.Context, json.RawMessage) (any, error) {
	return h.ctrl.State(), nil
}

// Send 执行一次完整的发送流程，供流式处理器复用
func (h *Handler) Send(ctx context.Context, req SendRequest) (*conversation.Turn, error) {
	return h.ctrl.Send(ctx, h.settings.Get(), req.Text, req.Attachments)
}

func (h *Handler) send(ctx context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[SendRequest](payload)
	if err != nil {
		return nil, err
	}
	return h.Send(ctx, req)
}

func (h *Handler) retry(ctx context.Context, payload json.RawMessage) (any, error) {
	idx, err := decodeIndex(payload)
	if err != nil {
		return nil, err
	}
	return h.ctrl.Retry(ctx, h.settings.Get(), idx)
}

func (h *Handler) edit(_ context.Context, payload json.RawMessage) (any, error) {
	idx, err := decodeIndex(payload)
	if err != nil {
		return nil, err
	}
	return h.ctrl.Edit(idx)
}

func (h *Handler) changeModel(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[modelRequest](payload)
	if err != nil {
		return nil, err
	}
	if _, err := h.ctrl.ChangeModel(req.Model); err != nil {
		return nil, err
	}
	return h.ctrl.State(), nil
}

func (h *Handler) newConversation(context.Context, json.RawMessage) (any, error) {
	h.ctrl.NewConversation()
	return h.ctrl.State(), nil
}

func (h *Handler) selectSession(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[selectRequest](payload)
	if err != nil {
		return nil, err
	}
	return h.ctrl.Select(req.SessionID)
}

func (h *Handler) setDraft(_ context.Context, payload json.RawMessage) (any, error) {
	req, err := bridge.Decode[draftRequest](payload)
	if err != nil {
		return nil, err
	}
	h.ctrl.SetDraft(req.Text)
	return h.ctrl.State(), nil
}

func decodeIndex(payload json.RawMessage) (int, error) {
	req, err := bridge.Decode[indexRequest](payload)
	if err != nil {
		return 0, err
	}
	if req.Index == nil {
		return 0, conversation.ErrInvalidIndex
	}
	return *req.Index, nil
}
