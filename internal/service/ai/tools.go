package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

const (
	toolGenerateImage = "generate_image"
	toolGenerateVideo = "generate_video"
)

// toolInfos declares the generation tools offered to the chat model.
func toolInfos() []*schema.ToolInfo {
	params := func(subject string) *schema.ParamsOneOf {
		return schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"prompt": {
				Type:     schema.String,
				Desc:     "Detailed description of the " + subject + " to generate.",
				Required: true,
			},
			"aspect_ratio": {
				Type: schema.String,
				Desc: "Aspect ratio such as 1:1, 16:9 or 9:16.",
				Enum: []string{"1:1", "3:4", "4:3", "9:16", "16:9"},
			},
		})
	}
	return []*schema.ToolInfo{
		{
			Name:        toolGenerateImage,
			Desc:        "Generate an image from a text description when the user asks for a picture, drawing or illustration.",
			ParamsOneOf: params("image"),
		},
		{
			Name:        toolGenerateVideo,
			Desc:        "Generate a short video clip from a text description when the user asks for a video or animation.",
			ParamsOneOf: params("video"),
		},
	}
}

type toolArgs struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

// parseToolCall maps a tool call onto a generation request.
func parseToolCall(call schema.ToolCall) (MediaKind, toolArgs, error) {
	var kind MediaKind
	switch call.Function.Name {
	case toolGenerateImage:
		kind = KindImage
	case toolGenerateVideo:
		kind = KindVideo
	default:
		return "", toolArgs{}, fmt.Errorf("unknown tool %q", call.Function.Name)
	}

	var args toolArgs
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return "", toolArgs{}, fmt.Errorf("decode %s arguments: %w", call.Function.Name, err)
		}
	}
	if strings.TrimSpace(args.Prompt) == "" {
		return "", toolArgs{}, fmt.Errorf("%s: %w", call.Function.Name, ErrPromptRequired)
	}
	return kind, args, nil
}
