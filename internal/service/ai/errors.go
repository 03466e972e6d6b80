package ai

import (
	"errors"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

var (
	ErrMissingCredential = errors.New("no API credential configured")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrMalformedResponse = errors.New("malformed response from model")
	ErrModelNotFound     = errors.New("model not found")
	ErrPromptRequired    = errors.New("prompt is required")
)

var status429 = regexp.MustCompile(`\b429\b`)

// IsRateLimited reports whether err is a 429 / RESOURCE_EXHAUSTED signal.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if apiErrorCode(err) == 429 {
		return true
	}
	msg := err.Error()
	return status429.MatchString(msg) ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "too many requests")
}

// IsModelNotFound reports whether err says the requested model does not exist.
func IsModelNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrModelNotFound) {
		return true
	}
	if apiErrorCode(err) == 404 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Error 404") || strings.Contains(msg, "NOT_FOUND")
}

func apiErrorCode(err error) int {
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code
	}
	var val genai.APIError
	if errors.As(err, &val) {
		return val.Code
	}
	return 0
}
