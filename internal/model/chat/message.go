package chat

// Role identifies the author of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// NormalizeRole maps roles written by other clients onto the two roles the
// transcript uses.
func NormalizeRole(raw string) Role {
	switch raw {
	case "assistant", "model", "bot":
		return RoleModel
	default:
		return RoleUser
	}
}

// Message is one turn of a conversation.
type Message struct {
	Role        Role       `json:"role"`
	Content     string     `json:"content"`
	Attachments []MediaRef `json:"attachments,omitempty"`
	// Pending marks the placeholder model turn while a request is in flight.
	Pending bool `json:"pending,omitempty"`
	IsError bool `json:"isError,omitempty"`
}

// CacheRefs returns the attachments stored in the media cache.
func (m Message) CacheRefs() []MediaRef {
	var out []MediaRef
	for _, a := range m.Attachments {
		if a.Kind() == MediaCache {
			out = append(out, a)
		}
	}
	return out
}

// WithoutInlineMedia drops inline-encoded attachments, keeping cache and
// external references.
func (m Message) WithoutInlineMedia() Message {
	if len(m.Attachments) == 0 {
		return m
	}
	kept := make([]MediaRef, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		if a.Kind() != MediaInline {
			kept = append(kept, a)
		}
	}
	m.Attachments = kept
	return m
}
