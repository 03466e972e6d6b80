package ai

import (
	"context"

	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/model/settings"
)

// ChatModelSpec describes the chat model a single turn runs against.
type ChatModelSpec struct {
	Provider settings.Provider
	APIKey   string
	Model    string
	Thinking *ThinkingMode
}

// ChatModelFactory builds a tool-capable chat model for one turn.
type ChatModelFactory func(ctx context.Context, spec ChatModelSpec) (model.ToolCallingChatModel, error)

// GenerateOptions tune image and video generation.
type GenerateOptions struct {
	AspectRatio    string `json:"aspectRatio,omitempty"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
}

// GeneratedMedia is raw output from a generation backend.
type GeneratedMedia struct {
	Data     []byte
	MIMEType string
}

// MediaBackend talks to the hosted image/video models and the model catalog.
type MediaBackend interface {
	GenerateImage(ctx context.Context, apiKey, modelID, prompt string, opts GenerateOptions) (*GeneratedMedia, error)
	GenerateVideo(ctx context.Context, apiKey, modelID, prompt string, opts GenerateOptions) (*GeneratedMedia, error)
	ListModels(ctx context.Context, apiKey string) ([]ModelInfo, error)
}

// MediaResolver reads cache references back into bytes.
type MediaResolver interface {
	Resolve(ref string) ([]byte, string, error)
}

// MediaWriter persists generated bytes.
type MediaWriter interface {
	Store(data []byte, mimeType string) (chat.MediaRef, error)
}
