package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

var (
	// ErrNotFound is returned by KV.Get for a missing key.
	ErrNotFound = errors.New("key not found")
	// ErrQuotaExceeded is returned when a value is larger than the configured quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// KV is the raw key-value layer underneath the encrypted store.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Close() error
}

// PebbleKV keeps the blobs in a local pebble database.
type PebbleKV struct {
	db    *pebble.DB
	quota int
}

// OpenPebble opens (or creates) a pebble database at path. A positive quota
// caps the size of a single value.
func OpenPebble(path string, quota int) (*PebbleKV, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleKV{db: db, quota: quota}, nil
}

// OpenPebbleReadOnly opens an existing database without taking write ownership.
func OpenPebbleReadOnly(path string) (*PebbleKV, error) {
	db, err := pebble.Open(path, &pebble.Options{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleKV{db: db}, nil
}

func (p *PebbleKV) Get(key string) ([]byte, error) {
	value, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), value...), nil
}

func (p *PebbleKV) Set(key string, value []byte) error {
	if p.quota > 0 && len(value) > p.quota {
		return fmt.Errorf("%w: %d > %d bytes", ErrQuotaExceeded, len(value), p.quota)
	}
	return p.db.Set([]byte(key), value, pebble.Sync)
}

func (p *PebbleKV) Close() error {
	return p.db.Close()
}

// MemoryKV is an in-process KV used by tests and ephemeral runs.
type MemoryKV struct {
	mu    sync.RWMutex
	items map[string][]byte
	quota int
}

// NewMemoryKV returns an empty MemoryKV. A positive quota caps value size.
func NewMemoryKV(quota int) *MemoryKV {
	return &MemoryKV{items: make(map[string][]byte), quota: quota}
}

func (m *MemoryKV) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryKV) Set(key string, value []byte) error {
	if m.quota > 0 && len(value) > m.quota {
		return fmt.Errorf("%w: %d > %d bytes", ErrQuotaExceeded, len(value), m.quota)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Close() error { return nil }
