package bridge

import (
	"strings"
)

// Origins is the allow-list of browser origins that may call the backend.
// A request without an Origin header did not come from a web page and is
// always allowed.
type Origins map[string]struct{}

// NewOrigins builds an allow-list. Blank entries and "*" are ignored.
func NewOrigins(list []string) Origins {
	o := make(Origins, len(list))
	for _, raw := range list {
		origin := normalizeOrigin(raw)
		if origin == "" || origin == "*" {
			continue
		}
		o[origin] = struct{}{}
	}
	return o
}

// Allowed reports whether origin may call the backend.
func (o Origins) Allowed(origin string) bool {
	if strings.TrimSpace(origin) == "" {
		return true
	}
	_, ok := o[normalizeOrigin(origin)]
	return ok
}

func normalizeOrigin(raw string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "/")
}
