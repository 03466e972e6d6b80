package stream

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/gemdesk/backend/internal/handler/apierr"
	chathandler "github.com/zhouzirui/gemdesk/backend/internal/handler/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/gemdesk/backend/pkg/utils"
)

// Sender runs one buffered turn.
type Sender interface {
	Send(ctx context.Context, req chathandler.SendRequest) (*conversation.Turn, error)
}

// Handler wraps a buffered turn in Server-Sent Events. The model reply is
// delivered as a single message event.
type Handler struct {
	sender Sender
	logger *zap.Logger
}

// New creates a new stream handler
func New(sender Sender, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sender: sender, logger: logger}
}

// Event names, in the order they are sent.
const (
	EventStart   = "start"
	EventMessage = "message"
	EventEnd     = "end"
)

// StreamResponse is the data of one SSE event
type StreamResponse struct {
	SessionID string          `json:"sessionId,omitempty"`
	Content   string          `json:"content,omitempty"`
	Media     []chat.MediaRef `json:"media,omitempty"`
	Previews  []chat.MediaRef `json:"previews,omitempty"`
	IsError   bool            `json:"isError,omitempty"`
	Finished  bool            `json:"finished,omitempty"`
}

// RegisterRoutes 注册流式路由。发送会改变会话记录，因此只接受POST。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/stream", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	var req chathandler.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// A client that goes away still gets its turn recorded.
	turn, err := h.sender.Send(context.WithoutCancel(r.Context()), req)
	if err != nil {
		// Nothing was recorded, so answer with a plain error instead of a stream.
		apierr.Respond(w, err)
		return
	}

	utils.SetupSSEHeaders(w)
	sessionID := turn.Session.ID
	if !h.send(w, flusher, EventStart, StreamResponse{SessionID: sessionID}) {
		return
	}

	if n := len(turn.Session.Messages); n > 0 {
		final := turn.Session.Messages[n-1]
		if !h.send(w, flusher, EventMessage, StreamResponse{
			SessionID: sessionID,
			Content:   final.Content,
			Media:     final.Attachments,
			Previews:  turn.Previews,
			IsError:   final.IsError,
		}) {
			return
		}
	}

	h.send(w, flusher, EventEnd, StreamResponse{SessionID: sessionID, Finished: true})
	h.logger.Debug("stream_completed", zap.String("session", sessionID), zap.Bool("failed", turn.Failed))
}

func (h *Handler) send(w http.ResponseWriter, flusher http.Flusher, event string, resp StreamResponse) bool {
	if err := utils.SendSSEEvent(w, flusher, event, resp); err != nil {
		h.logger.Info("stream_write_failed", zap.String("event", event), zap.String("session", resp.SessionID), zap.Error(err))
		return false
	}
	return true
}
