package settings

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/gemdesk/backend/internal/model/settings"
)

type memPersister struct {
	value model.Settings
	loads int
	saves int
	err   error
}

func (p *memPersister) Load() model.Settings {
	p.loads++
	return p.value
}

func (p *memPersister) Save(v model.Settings) error {
	p.saves++
	if p.err != nil {
		return p.err
	}
	p.value = v
	return nil
}

func TestGetLoadsLazilyOnce(t *testing.T) {
	p := &memPersister{value: model.Settings{DisplayName: "Ada"}}
	svc := NewService(p, "", "gemini-2.5-flash", nil)
	require.Zero(t, p.loads)

	got := svc.Get()
	require.Equal(t, "Ada", got.DisplayName)
	require.Equal(t, "gemini-2.5-flash", got.ActiveModel)
	require.Equal(t, model.ThemeSystem, got.Theme)

	svc.Get()
	require.Equal(t, 1, p.loads)
}

func TestBootstrapCredentialWhenEmpty(t *testing.T) {
	svc := NewService(&memPersister{}, " env-key ", "", nil)
	got := svc.Get()
	require.Len(t, got.Credentials, 1)

	cred, ok := got.ActiveCredential()
	require.True(t, ok)
	require.Equal(t, "env-key", cred.Secret)
	require.Equal(t, model.ProviderGemini, cred.Provider)
}

func TestBootstrapSkippedWhenCredentialsExist(t *testing.T) {
	p := &memPersister{value: model.Settings{Credentials: []model.Credential{{ID: "c1", Secret: "stored"}}}}
	got := NewService(p, "env-key", "", nil).Get()
	require.Len(t, got.Credentials, 1)
	require.Equal(t, "stored", got.Credentials[0].Secret)
}

func TestCredentialLifecycle(t *testing.T) {
	p := &memPersister{}
	svc := NewService(p, "", "", nil)

	_, err := svc.AddCredential("x", "  ", model.ProviderGemini)
	require.ErrorIs(t, err, ErrSecretRequired)

	first, err := svc.AddCredential("personal", "k1", "")
	require.NoError(t, err)
	second, err := svc.AddCredential("", "k2", model.ProviderArk)
	require.NoError(t, err)
	require.NotEmpty(t, second.Label)

	require.Equal(t, first.ID, svc.Get().ActiveCredentialID)

	_, err = svc.SetActiveCredential("missing")
	require.ErrorIs(t, err, ErrCredentialNotFound)

	_, err = svc.SetActiveCredential(second.ID)
	require.NoError(t, err)

	after, err := svc.RemoveCredential(second.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, after.ActiveCredentialID)
	require.Equal(t, after, p.value)
}

func TestUpdateRejectsInvalidTheme(t *testing.T) {
	svc := NewService(&memPersister{}, "", "", nil)
	_, err := svc.Update(func(s *model.Settings) error {
		s.Theme = "neon"
		return nil
	})
	require.ErrorIs(t, err, ErrInvalidTheme)
}

func TestPersistFailureKeepsInMemoryValue(t *testing.T) {
	p := &memPersister{err: errors.New("quota")}
	svc := NewService(p, "", "", nil)

	_, err := svc.SetActiveModel("gemini-2.5-pro")
	require.NoError(t, err)
	require.Equal(t, "gemini-2.5-pro", svc.Get().ActiveModel)
}

func TestReplaceKeepsStoredSecretForRedactedCredential(t *testing.T) {
	p := &memPersister{}
	svc := NewService(p, "", "gemini-2.5-flash", nil)
	cred, err := svc.AddCredential("work", "secret-value-1234", model.ProviderGemini)
	require.NoError(t, err)

	view := svc.Get().Redacted()
	require.Empty(t, view.Credentials[0].Secret)
	require.Equal(t, "…1234", view.Credentials[0].Hint)

	view.Theme = model.ThemeDark
	_, err = svc.Replace(view)
	require.NoError(t, err)
	require.Equal(t, "secret-value-1234", p.value.Credentials[0].Secret)
	require.Empty(t, p.value.Credentials[0].Hint)
	require.Equal(t, cred.ID, p.value.ActiveCredentialID)

	_, err = svc.Replace(model.Settings{Credentials: []model.Credential{{ID: "unknown"}}})
	require.True(t, errors.Is(err, ErrSecretRequired))
}
