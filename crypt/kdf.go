package crypt

import (
	"errors"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength         = 16
	minSecretBytes        = 16
)

// KDFParams configures argon2id derivation of session keys.
type KDFParams struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	KeyLength   uint32
}

// DefaultKDFParams returns conservative parameters producing a 16-byte key.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      64 * 1024,
		Time:        1,
		Parallelism: 2,
		KeyLength:   DefaultBlowfishKeySize,
	}
}

// Validate checks p against the minimum accepted cost.
func (p KDFParams) Validate() error {
	if p.Memory < minMemoryKB {
		return errors.New("kdf memory must be >= 8192 KB")
	}
	if p.Time < minTimeCost {
		return errors.New("kdf time must be >= 1")
	}
	if p.Parallelism < minParallelism {
		return errors.New("kdf parallelism must be >= 1")
	}
	if p.KeyLength < MinBlowfishKeySize || p.KeyLength > MaxBlowfishKeySize {
		return ErrKeySize
	}
	return nil
}

// DeriveKey derives a Blowfish key from a shared secret and salt with
// argon2id.
func DeriveKey(secret, salt []byte, p KDFParams) (*BlowfishKey, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(secret) < minSecretBytes {
		return nil, errors.New("kdf secret must be at least 16 bytes")
	}
	if len(salt) < minSaltLength {
		return nil, errors.New("kdf salt must be at least 16 bytes")
	}

	raw := argon2.IDKey(secret, salt, p.Time, p.Memory, p.Parallelism, p.KeyLength)
	k, err := NewBlowfishKey(raw)
	clear(raw)
	return k, err
}
