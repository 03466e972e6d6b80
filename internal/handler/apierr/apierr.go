// Package apierr maps service errors onto HTTP statuses.
package apierr

import (
	"errors"
	"net/http"

	"github.com/zhouzirui/gemdesk/backend/internal/media"
	"github.com/zhouzirui/gemdesk/backend/internal/model/persona"
	"github.com/zhouzirui/gemdesk/backend/internal/platform"
	"github.com/zhouzirui/gemdesk/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/gemdesk/backend/internal/service/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/gemdesk/backend/internal/service/directory"
	settingsservice "github.com/zhouzirui/gemdesk/backend/internal/service/settings"
	"github.com/zhouzirui/gemdesk/backend/pkg/utils"
)

// ErrInvalidPayload marks a request body that could not be decoded.
var ErrInvalidPayload = errors.New("invalid request payload")

var (
	badRequest = []error{
		ErrInvalidPayload,
		media.ErrInvalidRef,
		media.ErrEmptyPayload,
		media.ErrInvalidDestination,
		media.ErrNotImage,
		persona.ErrNameRequired,
		ai.ErrPromptRequired,
		chatservice.ErrTitleRequired,
		conversation.ErrEmptyMessage,
		conversation.ErrInvalidIndex,
		conversation.ErrRetryRefused,
		conversation.ErrNoActiveSession,
		settingsservice.ErrSecretRequired,
		settingsservice.ErrInvalidTheme,
	}
	notFound = []error{
		media.ErrNotFound,
		persona.ErrNotFound,
		chatservice.ErrSessionNotFound,
		conversation.ErrPersonaNotFound,
		settingsservice.ErrCredentialNotFound,
		ai.ErrModelNotFound,
	}
)

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, conversation.ErrBusy), errors.Is(err, directory.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, ai.ErrMissingCredential):
		return http.StatusPreconditionFailed
	case errors.Is(err, ai.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, platform.ErrClipboardUnavailable):
		return http.StatusServiceUnavailable
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}

// Respond writes err as a failed envelope.
func Respond(w http.ResponseWriter, err error) {
	utils.RespondError(w, Status(err), err.Error())
}
