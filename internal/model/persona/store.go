package persona

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("persona not found")
	ErrNameRequired = errors.New("persona name is required")
)

// Store exposes persona retrieval and mutation.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
	Save(p Persona) (Persona, error)
	Delete(id string) error
}

// Persister writes the full catalog snapshot.
type Persister interface {
	Load() []Persona
	Save(items []Persona) error
}

// MemoryStore implements Store with an in-memory slice. With a Persister it
// writes the catalog after every mutation.
type MemoryStore struct {
	mu        sync.RWMutex
	items     []Persona
	persister Persister
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// NewPersistentStore loads the catalog from p, seeding it when empty.
func NewPersistentStore(p Persister, seed []Persona) (*MemoryStore, error) {
	items := p.Load()
	s := &MemoryStore{items: items, persister: p}
	if len(items) == 0 && len(seed) > 0 {
		s.items = append([]Persona(nil), seed...)
		if err := p.Save(s.items); err != nil {
			return s, err
		}
	}
	return s, nil
}

// List returns the persona list.
func (s *MemoryStore) List() []Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

// Save creates p when its ID is empty, otherwise replaces the stored record.
func (s *MemoryStore) Save(p Persona) (Persona, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Persona{}, ErrNameRequired
	}
	p.Icon = ParseIcon(string(p.Icon))

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
		s.items = append(s.items, p)
		return p, s.persistLocked()
	}

	for i, item := range s.items {
		if item.ID == p.ID {
			s.items[i] = p
			return p, s.persistLocked()
		}
	}
	return Persona{}, ErrNotFound
}

// Delete removes the record with id.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return s.persistLocked()
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) persistLocked() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Save(append([]Persona(nil), s.items...))
}
