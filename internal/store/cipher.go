package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keySize          = 32
	pbkdf2Iterations = 100_000
)

// keySalt is fixed so the same passphrase always opens the same store.
var keySalt = []byte("gemdesk/local-store/salt/v1")

// ErrCiphertextTooShort is returned for blobs shorter than a nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Cipher seals values as nonce|ciphertext with AES-256-GCM. The key is derived
// from an application-embedded passphrase and only protects against casual
// inspection of the data directory.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the store key from passphrase.
func NewCipher(passphrase string) (*Cipher, error) {
	key := pbkdf2.Key([]byte(passphrase), keySalt, pbkdf2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal returns nonce|ciphertext.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts a nonce|ciphertext blob.
func (c *Cipher) Open(data []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return nil, ErrCiphertextTooShort
	}
	return c.aead.Open(nil, data[:ns], data[ns:], nil)
}
