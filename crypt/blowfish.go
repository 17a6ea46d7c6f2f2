package crypt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/blowfish"
)

const (
	// MinBlowfishKeySize is the smallest key length Blowfish accepts.
	MinBlowfishKeySize = 4
	// MaxBlowfishKeySize is the largest key length Blowfish accepts.
	MaxBlowfishKeySize = 56
	// DefaultBlowfishKeySize is the size used by GenerateBlowfishKey when
	// size is 0.
	DefaultBlowfishKeySize = 16
)

var (
	// ErrKeyClosed is returned when key material is used after Close.
	ErrKeyClosed = errors.New("key closed")
	// ErrKeySize is returned for key lengths Blowfish does not accept.
	ErrKeySize = errors.New("invalid blowfish key size")
)

// BlowfishKey is an owned Blowfish session key.
type BlowfishKey struct {
	mu     sync.RWMutex
	raw    []byte
	cipher *blowfish.Cipher
	closed bool
}

// NewBlowfishKey copies raw and validates it as a Blowfish key.
func NewBlowfishKey(raw []byte) (*BlowfishKey, error) {
	if len(raw) < MinBlowfishKeySize || len(raw) > MaxBlowfishKeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrKeySize, len(raw))
	}
	buf := make([]byte, len(raw))
	copy(buf, raw)

	c, err := blowfish.NewCipher(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySize, err)
	}
	return &BlowfishKey{raw: buf, cipher: c}, nil
}

// GenerateBlowfishKey returns a random key of size bytes.
func GenerateBlowfishKey(size int) (*BlowfishKey, error) {
	if size == 0 {
		size = DefaultBlowfishKeySize
	}
	if size < MinBlowfishKeySize || size > MaxBlowfishKeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrKeySize, size)
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, err
	}
	k, err := NewBlowfishKey(raw)
	clear(raw)
	return k, err
}

// Len returns the key length in bytes, 0 once closed.
func (k *BlowfishKey) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.raw)
}

// Bytes returns a copy of the key material.
func (k *BlowfishKey) Bytes() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return nil, ErrKeyClosed
	}
	out := make([]byte, len(k.raw))
	copy(out, k.raw)
	return out, nil
}

// Cipher returns the Blowfish block cipher keyed with this key.
func (k *BlowfishKey) Cipher() (*blowfish.Cipher, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return nil, ErrKeyClosed
	}
	return k.cipher, nil
}

// Fingerprint returns the first 8 bytes of the SHA-256 of the key, hex
// encoded. It identifies a key in diagnostics without revealing it.
func (k *BlowfishKey) Fingerprint() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ""
	}
	sum := sha256.Sum256(k.raw)
	return hex.EncodeToString(sum[:8])
}

// Closed reports whether Close has been called.
func (k *BlowfishKey) Closed() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.closed
}

// String summarizes the key for verbose session dumps.
func (k *BlowfishKey) String() string {
	k.mu.RLock()
	closed, n := k.closed, len(k.raw)
	k.mu.RUnlock()
	if closed {
		return "(BlowfishKey closed)"
	}
	return fmt.Sprintf("(BlowfishKey len=%d fp=%s)", n, k.Fingerprint())
}

// Close zeroes the key material. It is safe to call more than once.
func (k *BlowfishKey) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	clear(k.raw)
	k.raw = nil
	k.cipher = nil
	k.closed = true
	return nil
}
