package settings

import (
	"strings"

	"github.com/google/uuid"
)

// Provider selects the chat backend a credential talks to.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderArk    Provider = "ark"
)

// Theme of the desktop shell.
type Theme string

const (
	ThemeSystem Theme = "system"
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
)

// Credential is one stored API key.
type Credential struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Secret   string   `json:"secret"`
	Provider Provider `json:"provider,omitempty"`
	// Hint identifies a redacted secret to the UI. Never persisted.
	Hint string `json:"hint,omitempty"`
}

// Redacted drops the secret, keeping only its last four characters as a hint.
func (c Credential) Redacted() Credential {
	out := c
	out.Secret = ""
	out.Hint = ""
	if n := len(c.Secret); n > 0 {
		tail := c.Secret
		if n > 4 {
			tail = c.Secret[n-4:]
		}
		out.Hint = "…" + tail
		if n <= 8 {
			out.Hint = "…"
		}
	}
	return out
}

// Settings is the process-wide user configuration.
type Settings struct {
	Credentials        []Credential `json:"credentials"`
	ActiveCredentialID string       `json:"activeCredentialId,omitempty"`
	ActiveModel        string       `json:"activeModel,omitempty"`
	Theme              Theme        `json:"theme,omitempty"`
	DisplayName        string       `json:"displayName,omitempty"`
	GlobalInstruction  string       `json:"globalInstruction,omitempty"`
}

// Default returns the settings used before anything is persisted.
func Default() Settings {
	return Settings{Theme: ThemeSystem}
}

// NewCredential builds a credential with a fresh id.
func NewCredential(label, secret string, provider Provider) Credential {
	if provider == "" {
		provider = ProviderGemini
	}
	return Credential{
		ID:       uuid.NewString(),
		Label:    strings.TrimSpace(label),
		Secret:   strings.TrimSpace(secret),
		Provider: provider,
	}
}

// ActiveCredential returns the selected credential. When no id is selected the
// first credential is used.
func (s Settings) ActiveCredential() (Credential, bool) {
	for _, c := range s.Credentials {
		if c.ID == s.ActiveCredentialID && c.Secret != "" {
			return c, true
		}
	}
	if s.ActiveCredentialID == "" && len(s.Credentials) > 0 && s.Credentials[0].Secret != "" {
		return s.Credentials[0], true
	}
	return Credential{}, false
}

// Redacted returns a copy with every credential secret removed.
func (s Settings) Redacted() Settings {
	out := s.Clone()
	for i, c := range out.Credentials {
		out.Credentials[i] = c.Redacted()
	}
	return out
}

// Clone copies the credential slice.
func (s Settings) Clone() Settings {
	out := s
	if s.Credentials != nil {
		out.Credentials = append([]Credential(nil), s.Credentials...)
	}
	return out
}
