package generate

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/gemdesk/backend/internal/handler/bridge"
	"github.com/zhouzirui/gemdesk/backend/internal/model/settings"
	"github.com/zhouzirui/gemdesk/backend/internal/service/ai"
)

// Generator 是处理器依赖的生成能力
type Generator interface {
	Generate(ctx context.Context, kind ai.MediaKind, apiKey, modelID, prompt string, opts ai.GenerateOptions) (*ai.Generated, error)
	ListModels(ctx context.Context, apiKey string) ([]ai.ModelInfo, error)
}

// SettingsSource 提供当前设置
type SettingsSource interface {
	Get() settings.Settings
}

// Handler 图像/视频生成的HTTP处理器
type Handler struct {
	gen      Generator
	settings SettingsSource
}

// New 创建生成处理器
func New(gen Generator, settings SettingsSource) *Handler {
	return &Handler{gen: gen, settings: settings}
}

// Request 生成请求
type Request struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
	ai.GenerateOptions
}

// RegisterRoutes 注册生成相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	ops := h.Ops()
	r.Post("/generate/image", bridge.HTTP(ops["generate.image"], http.StatusCreated))
	r.Post("/generate/video", bridge.HTTP(ops["generate.video"], http.StatusCreated))
	r.Get("/models", bridge.HTTP(ops["models.list"], http.StatusOK))
}

// Ops 返回可通过桥接调用的操作
func (h *Handler) Ops() map[string]bridge.Op {
	return map[string]bridge.Op{
		"generate.image": h.generate(ai.KindImage),
		"generate.video": h.generate(ai.KindVideo),
		"models.list":    h.listModels,
	}
}

func (h *Handler) generate(kind ai.MediaKind) bridge.Op {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		req, err := bridge.Decode[Request](payload)
		if err != nil {
			return nil, err
		}
		return h.gen.Generate(ctx, kind, h.apiKey(), req.Model, req.Prompt, req.GenerateOptions)
	}
}

func (h *Handler) listModels(ctx context.Context, _ json.RawMessage) (any, error) {
	return h.gen.ListModels(ctx, h.apiKey())
}

// apiKey 返回当前激活凭据的密钥，未配置时为空
func (h *Handler) apiKey() string {
	cred, _ := h.settings.Get().ActiveCredential()
	return cred.Secret
}
