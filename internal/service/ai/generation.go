package ai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/gemdesk/backend/internal/media"
	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
)

// Generated is the outcome of an image or video generation.
type Generated struct {
	Ref chat.MediaRef `json:"ref"`
	// Preview is an inline copy of generated images for immediate display.
	Preview *chat.MediaRef `json:"preview,omitempty"`
	Model   string         `json:"model"`
}

// Generator runs the image/video generation flow with a single model
// fallback on "model not found".
type Generator struct {
	backend MediaBackend
	cache   MediaWriter
	logger  *zap.Logger
}

// NewGenerator wires a Generator.
func NewGenerator(backend MediaBackend, cache MediaWriter, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{backend: backend, cache: cache, logger: logger}
}

// Generate produces one image or video for prompt and stores it in the cache.
func (g *Generator) Generate(ctx context.Context, kind MediaKind, apiKey, modelID, prompt string, opts GenerateOptions) (*Generated, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrPromptRequired
	}

	out, err := g.call(ctx, kind, apiKey, modelID, prompt, opts)
	if err != nil && IsModelNotFound(err) {
		fallback, ferr := g.fallback(ctx, kind, apiKey, modelID)
		if ferr != nil {
			g.logger.Warn("generation_fallback_unavailable", zap.String("model", modelID), zap.Error(ferr))
			return nil, err
		}
		g.logger.Info("generation_fallback", zap.String("kind", string(kind)), zap.String("from", modelID), zap.String("to", fallback))
		modelID = fallback
		out, err = g.call(ctx, kind, apiKey, modelID, prompt, opts)
		if err != nil {
			return nil, fmt.Errorf("fallback model %s: %w", modelID, err)
		}
	}
	if err != nil {
		return nil, err
	}

	mimeType := out.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
		if kind == KindVideo {
			mimeType = "video/mp4"
		}
	}

	result := &Generated{Model: modelID}
	ref, err := g.cache.Store(out.Data, mimeType)
	if err != nil {
		g.logger.Warn("generation_cache_write_failed", zap.String("model", modelID), zap.Error(err))
		ref = media.EncodeInline(out.Data, mimeType)
	}
	result.Ref = ref

	if kind == KindImage {
		preview := media.EncodeInline(out.Data, mimeType)
		result.Preview = &preview
	}
	return result, nil
}

func (g *Generator) call(ctx context.Context, kind MediaKind, apiKey, modelID, prompt string, opts GenerateOptions) (*GeneratedMedia, error) {
	var (
		out *GeneratedMedia
		err error
	)
	switch kind {
	case KindVideo:
		out, err = g.backend.GenerateVideo(ctx, apiKey, modelID, prompt, opts)
	default:
		out, err = g.backend.GenerateImage(ctx, apiKey, modelID, prompt, opts)
	}
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Data) == 0 {
		return nil, fmt.Errorf("%w: no predictions returned", ErrMalformedResponse)
	}
	return out, nil
}

func (g *Generator) fallback(ctx context.Context, kind MediaKind, apiKey, failed string) (string, error) {
	models, err := g.backend.ListModels(ctx, apiKey)
	if err != nil {
		return "", fmt.Errorf("list models: %w", err)
	}
	name, ok := SelectFallback(kind, models, failed)
	if !ok {
		return "", fmt.Errorf("%w: no %s model available", ErrModelNotFound, kind)
	}
	return name, nil
}
