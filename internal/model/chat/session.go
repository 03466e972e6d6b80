package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

// TitleLength is the number of characters of the first message used as title.
const TitleLength = 30

// Session is a persisted conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
	Model     string    `json:"model,omitempty"`
	GemID     string    `json:"gemId,omitempty"`
}

// Clone returns a deep copy safe to hand out of a locked catalog.
func (s Session) Clone() Session {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		if len(m.Attachments) > 0 {
			m.Attachments = append([]MediaRef(nil), m.Attachments...)
		}
		out.Messages[i] = m
	}
	return out
}

// CacheRefs returns every cache reference held by the session's messages.
func (s Session) CacheRefs() []MediaRef {
	var out []MediaRef
	for _, m := range s.Messages {
		out = append(out, m.CacheRefs()...)
	}
	return out
}

// TitleFrom derives a session title from the first message text.
func TitleFrom(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "New chat"
	}
	if utf8.RuneCountInString(text) <= TitleLength {
		return text
	}
	return string([]rune(text)[:TitleLength])
}

// Sessions is the persisted catalog snapshot.
type Sessions []Session

// WithoutInlineMedia returns a copy with inline attachments removed from every
// message. The store falls back to it when a full snapshot does not fit.
func (ss Sessions) WithoutInlineMedia() any {
	out := make(Sessions, len(ss))
	for i, s := range ss {
		c := s.Clone()
		for j, m := range c.Messages {
			c.Messages[j] = m.WithoutInlineMedia()
		}
		out[i] = c
	}
	return out
}
