// Package directory manages the session and persona catalogs together so
// that deletions cascade personas to sessions to cached media.
package directory

import (
	"errors"

	"go.uber.org/zap"

	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
	"github.com/zhouzirui/gemdesk/backend/internal/model/persona"
)

// Sessions is the subset of the session catalog the directory drives.
type Sessions interface {
	List() []chat.Session
	Get(id string) (chat.Session, error)
	Rename(id, title string) (chat.Session, error)
	Delete(id string) (chat.Session, error)
	ByPersona(gemID string) []chat.Session
	ClearDanglingPersonas(exists func(gemID string) bool) int
}

// MediaDeleter removes cached media files.
type MediaDeleter interface {
	Delete(ref string) error
}

// Directory is the catalog facade used by handlers.
type Directory struct {
	sessions         Sessions
	personas         persona.Store
	media            MediaDeleter
	onDeleted        func(sessionID string)
	onPersonaDeleted func(personaID string)
	busy             func(sessionID string) bool
	logger           *zap.Logger
}

// ErrSessionBusy is returned when deleting a session with a turn in flight.
var ErrSessionBusy = errors.New("session has a request in flight")

// Option customizes a Directory.
type Option func(*Directory)

// WithSessionDeleted registers a callback invoked after each session
// deletion.
func WithSessionDeleted(fn func(sessionID string)) Option {
	return func(d *Directory) { d.onDeleted = fn }
}

// WithPersonaDeleted registers a callback invoked after a persona is removed.
func WithPersonaDeleted(fn func(personaID string)) Option {
	return func(d *Directory) { d.onPersonaDeleted = fn }
}

// WithBusyCheck makes deletions refuse sessions for which busy reports an
// in-flight turn.
func WithBusyCheck(busy func(sessionID string) bool) Option {
	return func(d *Directory) { d.busy = busy }
}

// New wires a Directory.
func New(sessions Sessions, personas persona.Store, media MediaDeleter, logger *zap.Logger, opts ...Option) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Directory{sessions: sessions, personas: personas, media: media, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reconcile clears session links to personas that no longer exist.
func (d *Directory) Reconcile() int {
	return d.sessions.ClearDanglingPersonas(func(gemID string) bool {
		_, ok := d.personas.FindByID(gemID)
		return ok
	})
}

// ListSessions returns every session, newest first.
func (d *Directory) ListSessions() []chat.Session {
	return d.sessions.List()
}

// GetSession returns one session.
func (d *Directory) GetSession(id string) (chat.Session, error) {
	return d.sessions.Get(id)
}

// RenameSession changes a session title.
func (d *Directory) RenameSession(id, title string) (chat.Session, error) {
	return d.sessions.Rename(id, title)
}

// DeleteSession removes a session after deleting every cached media file its
// messages reference. Inline attachments need no cleanup. Media failures are
// logged and do not stop the deletion.
func (d *Directory) DeleteSession(id string) error {
	sess, err := d.sessions.Get(id)
	if err != nil {
		return err
	}
	if d.isBusy(id) {
		return ErrSessionBusy
	}
	d.deleteMedia(sess)

	if _, err := d.sessions.Delete(id); err != nil {
		return err
	}
	if d.onDeleted != nil {
		d.onDeleted(id)
	}
	return nil
}

// ListPersonas returns the persona catalog.
func (d *Directory) ListPersonas() []persona.Persona {
	return d.personas.List()
}

// GetPersona returns one persona.
func (d *Directory) GetPersona(id string) (persona.Persona, error) {
	p, ok := d.personas.FindByID(id)
	if !ok {
		return persona.Persona{}, persona.ErrNotFound
	}
	return p, nil
}

// SavePersona creates (empty ID) or updates a persona. A failed catalog write
// is logged; the in-memory catalog keeps the change.
func (d *Directory) SavePersona(p persona.Persona) (persona.Persona, error) {
	saved, err := d.personas.Save(p)
	if err != nil && saved.ID == "" {
		return persona.Persona{}, err
	}
	if err != nil {
		d.logger.Warn("persona_persist_failed", zap.String("gem", saved.ID), zap.Error(err))
	}
	return saved, nil
}

// DeletePersona deletes every session linked to the persona, each with its
// media, and only then the persona itself. Failures inside the cascade are
// logged and the cascade continues.
func (d *Directory) DeletePersona(id string) error {
	if _, ok := d.personas.FindByID(id); !ok {
		return persona.ErrNotFound
	}

	linked := d.sessions.ByPersona(id)
	for _, sess := range linked {
		if d.isBusy(sess.ID) {
			return ErrSessionBusy
		}
	}
	for _, sess := range linked {
		if err := d.DeleteSession(sess.ID); err != nil {
			d.logger.Warn("persona_cascade_session_failed",
				zap.String("gem", id), zap.String("session", sess.ID), zap.Error(err))
		}
	}

	if err := d.personas.Delete(id); err != nil {
		if errors.Is(err, persona.ErrNotFound) {
			return err
		}
		d.logger.Warn("persona_persist_failed", zap.String("gem", id), zap.Error(err))
	}
	if d.onPersonaDeleted != nil {
		d.onPersonaDeleted(id)
	}
	d.logger.Info("persona_deleted", zap.String("gem", id), zap.Int("sessions", len(linked)))
	return nil
}

func (d *Directory) isBusy(sessionID string) bool {
	return d.busy != nil && d.busy(sessionID)
}

func (d *Directory) deleteMedia(sess chat.Session) {
	if d.media == nil {
		return
	}
	for _, ref := range sess.CacheRefs() {
		if err := d.media.Delete(ref.URI); err != nil {
			d.logger.Warn("session_media_delete_failed",
				zap.String("session", sess.ID), zap.String("ref", ref.URI), zap.Error(err))
		}
	}
}
