package ai

import (
	"encoding/base64"
	"strings"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
)

// buildMessages formats the system instruction, prior turns and the new turn
// into the shape the chat model accepts.
func (s *Service) buildMessages(req ConverseRequest) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.History)+2)
	if sys := strings.TrimSpace(req.SystemInstruction); sys != "" {
		msgs = append(msgs, schema.SystemMessage(sys))
	}

	for _, turn := range req.History {
		if turn.Pending {
			continue
		}
		if turn.Content == "" && len(turn.Attachments) == 0 {
			continue
		}
		msgs = append(msgs, s.turnMessage(chat.NormalizeRole(string(turn.Role)), turn.Content, turn.Attachments, false))
	}

	return append(msgs, s.turnMessage(chat.RoleUser, req.Message, req.Attachments, true))
}

// turnMessage puts attachments first, then text. The new turn always carries
// at least one part.
func (s *Service) turnMessage(role chat.Role, text string, attachments []chat.MediaRef, isNew bool) *schema.Message {
	schemaRole := schema.User
	if role == chat.RoleModel {
		schemaRole = schema.Assistant
	}

	if len(attachments) == 0 && !isNew {
		return &schema.Message{Role: schemaRole, Content: text}
	}

	parts := make([]schema.ChatMessagePart, 0, len(attachments)+1)
	for _, ref := range attachments {
		parts = append(parts, s.mediaPart(ref))
	}
	if text != "" || len(parts) == 0 {
		parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: text})
	}
	return &schema.Message{Role: schemaRole, MultiContent: parts}
}

// mediaPart rehydrates a MediaRef. Cache references are read back into inline
// data; anything unreadable becomes a text placeholder.
func (s *Service) mediaPart(ref chat.MediaRef) schema.ChatMessagePart {
	uri := ref.URI
	mimeType := ref.MIMEType

	switch ref.Kind() {
	case chat.MediaInline, chat.MediaExternal:
	case chat.MediaCache:
		data, resolvedType, err := s.media.Resolve(ref.URI)
		if err != nil {
			s.logger.Warn("attachment_unresolvable", zap.String("ref", ref.URI), zap.Error(err))
			return placeholderPart(ref)
		}
		if mimeType == "" {
			mimeType = resolvedType
		}
		uri = "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	default:
		return placeholderPart(ref)
	}

	if strings.HasPrefix(mimeType, "video/") {
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeVideoURL,
			VideoURL: &schema.ChatMessageVideoURL{URL: uri, MIMEType: mimeType},
		}
	}
	return schema.ChatMessagePart{
		Type:     schema.ChatMessagePartTypeImageURL,
		ImageURL: &schema.ChatMessageImageURL{URL: uri, MIMEType: mimeType},
	}
}

func placeholderPart(ref chat.MediaRef) schema.ChatMessagePart {
	name := ref.CacheName()
	if name == "" {
		name = "attachment"
	}
	return schema.ChatMessagePart{
		Type: schema.ChatMessagePartTypeText,
		Text: "[attachment unavailable: " + name + "]",
	}
}
