package chat

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/gemdesk/backend/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTitleRequired   = errors.New("session title is required")
)

// Persister loads and saves the whole session catalog.
type Persister interface {
	Load() chat.Sessions
	Save(chat.Sessions) error
}

// Service owns the session catalog. Every mutation rewrites the persisted
// snapshot.
type Service struct {
	mu        sync.RWMutex
	sessions  map[string]chat.Session
	loaded    bool
	persister Persister
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a catalog backed by p. p may be nil for an in-memory
// catalog.
func NewService(p Persister, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions:  make(map[string]chat.Session),
		persister: p,
		logger:    logger,
		now:       time.Now,
	}
}

// ensureLoaded must be called with the write lock held.
func (s *Service) ensureLoaded() {
	if s.loaded {
		return
	}
	s.loaded = true
	if s.persister == nil {
		return
	}
	for _, sess := range s.persister.Load() {
		if sess.ID == "" {
			continue
		}
		s.sessions[sess.ID] = sess
	}
	s.logger.Info("sessions_loaded", zap.Int("count", len(s.sessions)))
}

func (s *Service) load() {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return
	}
	s.mu.Lock()
	s.ensureLoaded()
	s.mu.Unlock()
}

// List returns every session, most recently updated first.
func (s *Service) List() []chat.Session {
	s.load()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Get returns a copy of one session.
func (s *Service) Get(id string) (chat.Session, error) {
	s.load()

	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Create stores a new session. An empty ID gets a fresh one.
func (s *Service) Create(sess chat.Session) chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Title == "" {
		sess.Title = chat.TitleFrom("")
	}
	sess.UpdatedAt = s.now().UTC()
	s.sessions[sess.ID] = sess.Clone()
	s.persist()

	s.logger.Info("session_created", zap.String("session", sess.ID), zap.String("gem", sess.GemID))
	return sess.Clone()
}

// Update applies fn to the stored session under the catalog lock and
// persists the result.
func (s *Service) Update(id string, fn func(*chat.Session) error) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	sess, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	sess = sess.Clone()
	if err := fn(&sess); err != nil {
		return chat.Session{}, err
	}
	sess.ID = id
	sess.UpdatedAt = s.now().UTC()
	s.sessions[id] = sess
	s.persist()
	return sess.Clone(), nil
}

// Rename sets a session's title.
func (s *Service) Rename(id, title string) (chat.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return chat.Session{}, ErrTitleRequired
	}
	return s.Update(id, func(sess *chat.Session) error {
		sess.Title = title
		return nil
	})
}

// Delete removes a session and returns what was removed so callers can clean
// up its media.
func (s *Service) Delete(id string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	sess, ok := s.sessions[id]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.persist()

	s.logger.Info("session_deleted", zap.String("session", id))
	return sess, nil
}

// ByPersona returns the sessions linked to gemID.
func (s *Service) ByPersona(gemID string) []chat.Session {
	s.load()

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []chat.Session
	for _, sess := range s.snapshot() {
		if sess.GemID == gemID {
			out = append(out, sess)
		}
	}
	return out
}

// ClearDanglingPersonas drops gemId links for which exists reports false.
// It returns the number of sessions changed.
func (s *Service) ClearDanglingPersonas(exists func(gemID string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	changed := 0
	for id, sess := range s.sessions {
		if sess.GemID == "" || exists(sess.GemID) {
			continue
		}
		sess.GemID = ""
		s.sessions[id] = sess
		changed++
	}
	if changed > 0 {
		s.persist()
		s.logger.Info("sessions_persona_cleared", zap.Int("count", changed))
	}
	return changed
}

// snapshot must be called with the lock held.
func (s *Service) snapshot() chat.Sessions {
	out := make(chat.Sessions, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// persist must be called with the write lock held. Failures are logged by the
// store and not surfaced.
func (s *Service) persist() {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(s.snapshot()); err != nil {
		s.logger.Warn("sessions_persist_failed", zap.Error(err))
	}
}
