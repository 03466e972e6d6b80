package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/model/settings"
)

// Options carries the gateway's static configuration.
type Options struct {
	ImageModel     string
	VideoModel     string
	RetryBaseDelay time.Duration
	MaxRetries     int
	ModelsTTL      time.Duration
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Service mediates every call to the hosted generative model.
type Service struct {
	chatModels ChatModelFactory
	backend    MediaBackend
	media      MediaResolver
	generator  *Generator
	opts       Options
	sleep      Sleeper
	models     *ModelsCache
	logger     *zap.Logger
}

// NewService creates a new gateway.
func NewService(chatModels ChatModelFactory, backend MediaBackend, resolver MediaResolver, generator *Generator, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 2 * time.Second
	}
	if opts.ModelsTTL <= 0 {
		opts.ModelsTTL = time.Hour
	}
	return &Service{
		chatModels: chatModels,
		backend:    backend,
		media:      resolver,
		generator:  generator,
		opts:       opts,
		sleep:      sleepContext,
		models:     NewModelsCache(opts.ModelsTTL),
		logger:     logger,
	}
}

// WithSleeper replaces the backoff clock, for tests.
func (s *Service) WithSleeper(sleep Sleeper) *Service {
	s.sleep = sleep
	return s
}

// ConverseRequest is one turn submitted to the model.
type ConverseRequest struct {
	Credential        settings.Credential
	ModelID           string
	Message           string
	Attachments       []chat.MediaRef
	History           []chat.Message
	SystemInstruction string
}

// ConverseResult is the reconciled model turn.
type ConverseResult struct {
	Text     string          `json:"text"`
	Media    []chat.MediaRef `json:"media,omitempty"`
	Previews []chat.MediaRef `json:"previews,omitempty"`
	Model    string          `json:"model"`
}

// Converse runs one turn: formats history, calls the model with rate-limit
// retries, and dispatches any generation tool calls.
func (s *Service) Converse(ctx context.Context, req ConverseRequest) (*ConverseResult, error) {
	if strings.TrimSpace(req.Credential.Secret) == "" {
		return nil, ErrMissingCredential
	}

	modelID, thinking := ResolveModel(req.ModelID)
	cm, err := s.chatModels(ctx, ChatModelSpec{
		Provider: req.Credential.Provider,
		APIKey:   req.Credential.Secret,
		Model:    modelID,
		Thinking: thinking,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	withTools, err := cm.WithTools(toolInfos())
	if err != nil {
		return nil, fmt.Errorf("bind tools: %w", err)
	}

	input := s.buildMessages(req)
	resp, err := s.generateWithRetry(ctx, withTools, input)
	if err != nil {
		return nil, err
	}
	if resp == nil || (resp.Content == "" && len(resp.ToolCalls) == 0) {
		return nil, fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}

	result := &ConverseResult{Text: resp.Content, Model: modelID}
	for _, call := range resp.ToolCalls {
		s.dispatchTool(ctx, req.Credential.Secret, call, result)
	}

	s.logger.Info("turn_completed",
		zap.String("model", modelID),
		zap.Int("history", len(req.History)),
		zap.Int("text_len", len(result.Text)),
		zap.Int("media", len(result.Media)),
	)
	return result, nil
}

// generateWithRetry retries rate-limited calls with a doubling delay.
func (s *Service) generateWithRetry(ctx context.Context, cm model.BaseChatModel, input []*schema.Message) (*schema.Message, error) {
	delay := s.opts.RetryBaseDelay
	for attempt := 0; ; attempt++ {
		resp, err := cm.Generate(ctx, input)
		if err == nil {
			return resp, nil
		}
		if !IsRateLimited(err) {
			return nil, err
		}
		if attempt >= s.opts.MaxRetries {
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrRateLimited, attempt+1, err)
		}

		s.logger.Warn("rate_limited_retrying", zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
}

// dispatchTool runs a generation tool call once. Failures become text so the
// accompanying answer is kept.
func (s *Service) dispatchTool(ctx context.Context, apiKey string, call schema.ToolCall, result *ConverseResult) {
	kind, args, err := parseToolCall(call)
	if err != nil {
		s.logger.Warn("tool_call_rejected", zap.String("tool", call.Function.Name), zap.Error(err))
		return
	}

	modelID := s.opts.ImageModel
	if kind == KindVideo {
		modelID = s.opts.VideoModel
	}

	gen, err := s.generator.Generate(ctx, kind, apiKey, modelID, args.Prompt, GenerateOptions{AspectRatio: args.AspectRatio})
	if err != nil {
		s.logger.Warn("tool_generation_failed", zap.String("kind", string(kind)), zap.Error(err))
		result.Text = appendLine(result.Text, fmt.Sprintf("%s generation failed: %v", titleKind(kind), err))
		return
	}
	result.Media = append(result.Media, gen.Ref)
	if gen.Preview != nil {
		result.Previews = append(result.Previews, *gen.Preview)
	}
}

// Generate exposes the generation sub-flow directly.
func (s *Service) Generate(ctx context.Context, kind MediaKind, apiKey, modelID, prompt string, opts GenerateOptions) (*Generated, error) {
	if modelID == "" {
		modelID = s.opts.ImageModel
		if kind == KindVideo {
			modelID = s.opts.VideoModel
		}
	}
	return s.generator.Generate(ctx, kind, apiKey, modelID, prompt, opts)
}

// ListModels returns the hosted catalog plus thinking pseudo-models.
func (s *Service) ListModels(ctx context.Context, apiKey string) ([]ModelInfo, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}
	if cached := s.models.Get(apiKey); cached != nil {
		return cached, nil
	}
	models, err := s.backend.ListModels(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	models = withThinkingVariants(models)
	s.models.Set(apiKey, models)
	return models, nil
}

func appendLine(text, line string) string {
	if text == "" {
		return line
	}
	return text + "\n\n" + line
}

func titleKind(kind MediaKind) string {
	if kind == KindVideo {
		return "Video"
	}
	return "Image"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
