package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zhouzirui/gemdesk/backend/internal/model/settings"
)

// ClientPool keeps one genai client per API key.
type ClientPool struct {
	mu      sync.Mutex
	clients map[string]*genai.Client
	baseURL string
}

func NewClientPool(baseURL string) *ClientPool {
	return &ClientPool{clients: make(map[string]*genai.Client), baseURL: baseURL}
}

// Client returns the cached client for apiKey, creating it on first use.
func (p *ClientPool) Client(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[apiKey]; ok {
		return c, nil
	}
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	p.clients[apiKey] = c
	return c, nil
}

// NewChatModelFactory returns the production factory: Gemini credentials run
// through the eino gemini adapter, Ark credentials through the ark adapter.
func NewChatModelFactory(pool *ClientPool, arkBaseURL string) ChatModelFactory {
	return func(ctx context.Context, spec ChatModelSpec) (model.ToolCallingChatModel, error) {
		if spec.Provider == settings.ProviderArk {
			cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
				BaseURL: arkBaseURL,
				APIKey:  spec.APIKey,
				Model:   spec.Model,
			})
			if err != nil {
				return nil, err
			}
			return arkChatModel{cm}, nil
		}

		client, err := pool.Client(ctx, spec.APIKey)
		if err != nil {
			return nil, err
		}
		cfg := &gemini.Config{Client: client, Model: spec.Model}
		if spec.Thinking != nil {
			budget := spec.Thinking.Budget
			cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
		}
		return gemini.NewChatModel(ctx, cfg)
	}
}

// arkChatModel gives the ark adapter the WithTools form. The factory builds a
// fresh model per call, so binding in place is never shared.
type arkChatModel struct {
	*ark.ChatModel
}

func (m arkChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := m.BindTools(tools); err != nil {
		return nil, err
	}
	return m, nil
}

// GenAIBackend implements MediaBackend over the Gemini API.
type GenAIBackend struct {
	pool         *ClientPool
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewGenAIBackend(pool *ClientPool, pollInterval time.Duration, logger *zap.Logger) *GenAIBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &GenAIBackend{pool: pool, pollInterval: pollInterval, logger: logger}
}

func (b *GenAIBackend) GenerateImage(ctx context.Context, apiKey, modelID, prompt string, opts GenerateOptions) (*GeneratedMedia, error) {
	client, err := b.pool.Client(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	resp, err := client.Models.GenerateImages(ctx, modelID, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    opts.AspectRatio,
		NegativePrompt: opts.NegativePrompt,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("%w: no images returned", ErrMalformedResponse)
	}
	img := resp.GeneratedImages[0].Image
	return &GeneratedMedia{Data: img.ImageBytes, MIMEType: img.MIMEType}, nil
}

// GenerateVideo starts a long-running operation and polls it until done.
func (b *GenAIBackend) GenerateVideo(ctx context.Context, apiKey, modelID, prompt string, opts GenerateOptions) (*GeneratedMedia, error) {
	client, err := b.pool.Client(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	op, err := client.Models.GenerateVideos(ctx, modelID, prompt, nil, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    opts.AspectRatio,
		NegativePrompt: opts.NegativePrompt,
	})
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for !op.Done {
		b.logger.Debug("video_operation_pending", zap.String("operation", op.Name))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		op, err = client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return nil, fmt.Errorf("poll video operation: %w", err)
		}
	}

	if len(op.Error) > 0 {
		return nil, fmt.Errorf("video operation failed: %v", op.Error)
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return nil, fmt.Errorf("%w: no videos returned", ErrMalformedResponse)
	}

	video := op.Response.GeneratedVideos[0].Video
	data := video.VideoBytes
	if len(data) == 0 && video.URI != "" {
		data, err = client.Files.Download(ctx, genai.NewDownloadURIFromVideo(video), nil)
		if err != nil {
			return nil, fmt.Errorf("download video: %w", err)
		}
	}
	mimeType := video.MIMEType
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	return &GeneratedMedia{Data: data, MIMEType: mimeType}, nil
}

// ListModels pages through the hosted catalog.
func (b *GenAIBackend) ListModels(ctx context.Context, apiKey string) ([]ModelInfo, error) {
	client, err := b.pool.Client(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	var models []ModelInfo
	for m, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		if m == nil {
			continue
		}
		models = append(models, ModelInfo{
			Name:        strings.TrimPrefix(m.Name, "models/"),
			DisplayName: m.DisplayName,
			Actions:     m.SupportedActions,
		})
	}
	if len(models) == 0 {
		return nil, errors.New("model catalog is empty")
	}
	return models, nil
}
