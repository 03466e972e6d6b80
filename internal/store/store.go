// Package store persists JSON snapshots as encrypted blobs in a local
// key-value database.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Keys of the three persisted blobs.
const (
	KeySessions = "chat_sessions"
	KeySettings = "settings"
	KeyGems     = "gems"
)

// Degradable is implemented by snapshots that can drop large inline media
// when a full write does not fit.
type Degradable interface {
	WithoutInlineMedia() any
}

// Store encrypts every value before it reaches the KV layer. Each write
// replaces the whole snapshot for its key.
type Store struct {
	kv     KV
	cipher *Cipher
	logger *zap.Logger
}

// New wires a Store over kv.
func New(kv KV, cipher *Cipher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, cipher: cipher, logger: logger}
}

// Close releases the underlying KV.
func (s *Store) Close() error {
	return s.kv.Close()
}

// Load decodes the snapshot stored under key. A value that fails to decrypt
// is tried as legacy plaintext JSON and re-persisted encrypted on success.
// Anything unreadable yields def.
func Load[T any](s *Store, key string, def T) T {
	raw, err := s.kv.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("store_read_failed", zap.String("key", key), zap.Error(err))
		}
		return def
	}

	if plain, err := s.cipher.Open(raw); err == nil {
		var v T
		if err := json.Unmarshal(plain, &v); err != nil {
			s.logger.Warn("store_decode_failed", zap.String("key", key), zap.Error(err))
			return def
		}
		return v
	}

	var legacy T
	if err := json.Unmarshal(raw, &legacy); err != nil {
		s.logger.Warn("store_blob_unreadable", zap.String("key", key), zap.Error(err))
		return def
	}

	s.logger.Info("store_legacy_migrated", zap.String("key", key))
	if err := Save(s, key, legacy); err != nil {
		s.logger.Warn("store_migration_persist_failed", zap.String("key", key), zap.Error(err))
	}
	return legacy
}

// Save encrypts and writes v under key. When the write fails and v is
// Degradable, it retries once without inline media. Errors are logged here;
// callers may ignore the returned error.
func Save[T any](s *Store, key string, v T) error {
	err := s.write(key, v)
	if err == nil {
		return nil
	}

	d, ok := any(v).(Degradable)
	if !ok {
		s.logger.Error("store_write_failed", zap.String("key", key), zap.Error(err))
		return err
	}

	s.logger.Warn("store_write_degraded", zap.String("key", key), zap.Error(err))
	if rerr := s.write(key, d.WithoutInlineMedia()); rerr != nil {
		s.logger.Error("store_write_failed", zap.String("key", key), zap.Error(rerr))
		return rerr
	}
	return nil
}

func (s *Store) write(key string, v any) error {
	plain, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	sealed, err := s.cipher.Seal(plain)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", key, err)
	}
	return s.kv.Set(key, sealed)
}

// Blob is a typed handle on one key.
type Blob[T any] struct {
	store *Store
	key   string
	def   func() T
}

// NewBlob returns a handle reading key as T, with def supplying the default.
func NewBlob[T any](s *Store, key string, def func() T) *Blob[T] {
	return &Blob[T]{store: s, key: key, def: def}
}

// Load returns the stored value or the default.
func (b *Blob[T]) Load() T {
	return Load(b.store, b.key, b.def())
}

// Save writes v.
func (b *Blob[T]) Save(v T) error {
	return Save(b.store, b.key, v)
}
