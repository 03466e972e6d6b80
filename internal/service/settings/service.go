// Package settings owns the process-wide settings singleton.
package settings

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	model "github.com/zhouzirui/gemdesk/backend/internal/model/settings"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrSecretRequired     = errors.New("credential secret is required")
	ErrInvalidTheme       = errors.New("invalid theme")
)

// Persister loads and saves the settings snapshot.
type Persister interface {
	Load() model.Settings
	Save(model.Settings) error
}

// Service lazily loads settings on first access and persists every change.
type Service struct {
	mu           sync.Mutex
	current      *model.Settings
	persister    Persister
	bootstrapKey string
	defaultModel string
	logger       *zap.Logger
}

// NewService wires the settings singleton. bootstrapKey is added as a
// credential when the loaded settings hold none.
func NewService(p Persister, bootstrapKey, defaultModel string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		persister:    p,
		bootstrapKey: strings.TrimSpace(bootstrapKey),
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Get returns a copy of the current settings.
func (s *Service) Get() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked().Clone()
}

// Update applies fn and persists the result.
func (s *Service) Update(fn func(*model.Settings) error) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.loadLocked().Clone()
	if err := fn(&next); err != nil {
		return model.Settings{}, err
	}
	if err := validate(next); err != nil {
		return model.Settings{}, err
	}
	s.current = &next
	s.persist()
	return next.Clone(), nil
}

// Replace stores v wholesale. A credential that arrives without a secret keeps
// the secret stored under its id, so redacted settings can be saved back.
func (s *Service) Replace(v model.Settings) (model.Settings, error) {
	return s.Update(func(cur *model.Settings) error {
		stored := make(map[string]string, len(cur.Credentials))
		for _, c := range cur.Credentials {
			stored[c.ID] = c.Secret
		}

		next := v.Clone()
		for i, c := range next.Credentials {
			c.Hint = ""
			c.Secret = strings.TrimSpace(c.Secret)
			if c.Secret == "" {
				secret, ok := stored[c.ID]
				if !ok {
					return ErrSecretRequired
				}
				c.Secret = secret
			}
			next.Credentials[i] = c
		}
		*cur = next
		return nil
	})
}

// AddCredential appends a credential and selects it when none is active.
func (s *Service) AddCredential(label, secret string, provider model.Provider) (model.Credential, error) {
	cred := model.NewCredential(label, secret, provider)
	if cred.Secret == "" {
		return model.Credential{}, ErrSecretRequired
	}
	if cred.Label == "" {
		cred.Label = "Key " + cred.ID[:8]
	}
	_, err := s.Update(func(cur *model.Settings) error {
		cur.Credentials = append(cur.Credentials, cred)
		if cur.ActiveCredentialID == "" {
			cur.ActiveCredentialID = cred.ID
		}
		return nil
	})
	if err != nil {
		return model.Credential{}, err
	}
	s.logger.Info("credential_added", zap.String("credential", cred.ID), zap.String("provider", string(cred.Provider)))
	return cred, nil
}

// RemoveCredential deletes a credential, moving the active selection to the
// first remaining one if needed.
func (s *Service) RemoveCredential(id string) (model.Settings, error) {
	return s.Update(func(cur *model.Settings) error {
		idx := -1
		for i, c := range cur.Credentials {
			if c.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrCredentialNotFound
		}
		cur.Credentials = append(cur.Credentials[:idx], cur.Credentials[idx+1:]...)
		if cur.ActiveCredentialID == id {
			cur.ActiveCredentialID = ""
			if len(cur.Credentials) > 0 {
				cur.ActiveCredentialID = cur.Credentials[0].ID
			}
		}
		return nil
	})
}

// SetActiveCredential selects the credential used for new calls.
func (s *Service) SetActiveCredential(id string) (model.Settings, error) {
	return s.Update(func(cur *model.Settings) error {
		cur.ActiveCredentialID = id
		return nil
	})
}

// SetActiveModel changes the global default model.
func (s *Service) SetActiveModel(id string) (model.Settings, error) {
	return s.Update(func(cur *model.Settings) error {
		cur.ActiveModel = strings.TrimSpace(id)
		return nil
	})
}

// loadLocked must be called with mu held.
func (s *Service) loadLocked() model.Settings {
	if s.current != nil {
		return *s.current
	}

	loaded := model.Default()
	if s.persister != nil {
		loaded = s.persister.Load()
	}
	if loaded.Theme == "" {
		loaded.Theme = model.ThemeSystem
	}
	if loaded.ActiveModel == "" {
		loaded.ActiveModel = s.defaultModel
	}
	if len(loaded.Credentials) == 0 && s.bootstrapKey != "" {
		cred := model.NewCredential("Environment", s.bootstrapKey, model.ProviderGemini)
		loaded.Credentials = []model.Credential{cred}
		loaded.ActiveCredentialID = cred.ID
		s.logger.Info("credential_bootstrapped", zap.String("credential", cred.ID))
	}

	s.current = &loaded
	return loaded
}

// persist must be called with mu held.
func (s *Service) persist() {
	if s.persister == nil || s.current == nil {
		return
	}
	if err := s.persister.Save(*s.current); err != nil {
		s.logger.Warn("settings_persist_failed", zap.Error(err))
	}
}

func validate(v model.Settings) error {
	switch v.Theme {
	case "", model.ThemeSystem, model.ThemeLight, model.ThemeDark:
	default:
		return ErrInvalidTheme
	}
	if v.ActiveCredentialID == "" {
		return nil
	}
	for _, c := range v.Credentials {
		if c.ID == v.ActiveCredentialID {
			return nil
		}
	}
	return ErrCredentialNotFound
}
