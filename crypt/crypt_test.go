package crypt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/MrEthical07/goSession/session"
)

var _ session.SymmetricKey = (*BlowfishKey)(nil)

func TestNewBlowfishKeyCopiesInput(t *testing.T) {
	raw := []byte("0123456789abcdef")
	k, err := NewBlowfishKey(raw)
	if err != nil {
		t.Fatalf("NewBlowfishKey error: %v", err)
	}
	raw[0] = 'X'

	got, err := k.Bytes()
	if err != nil {
		t.Fatalf("Bytes error: %v", err)
	}
	if got[0] != '0' {
		t.Fatalf("key must not alias caller buffer")
	}
	if k.Len() != 16 {
		t.Fatalf("expected length 16, got %d", k.Len())
	}
}

func TestNewBlowfishKeyRejectsBadSizes(t *testing.T) {
	for _, n := range []int{0, 3, 57, 128} {
		if _, err := NewBlowfishKey(make([]byte, n)); !errors.Is(err, ErrKeySize) {
			t.Fatalf("size %d: expected ErrKeySize, got %v", n, err)
		}
	}
}

func TestCipherRoundTripBlock(t *testing.T) {
	k, err := GenerateBlowfishKey(0)
	if err != nil {
		t.Fatalf("GenerateBlowfishKey error: %v", err)
	}
	defer k.Close()

	c, err := k.Cipher()
	if err != nil {
		t.Fatalf("Cipher error: %v", err)
	}
	plain := []byte("8 bytes!")
	enc := make([]byte, 8)
	dec := make([]byte, 8)
	c.Encrypt(enc, plain)
	c.Decrypt(dec, enc)
	if !bytes.Equal(plain, dec) {
		t.Fatalf("block round trip mismatch")
	}
}

func TestCloseZeroesAndIsIdempotent(t *testing.T) {
	k, err := NewBlowfishKey([]byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewBlowfishKey error: %v", err)
	}
	if err := k.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := k.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
	if !k.Closed() || k.Len() != 0 {
		t.Fatalf("closed key must report no material")
	}
	if _, err := k.Bytes(); !errors.Is(err, ErrKeyClosed) {
		t.Fatalf("expected ErrKeyClosed, got %v", err)
	}
	if _, err := k.Cipher(); !errors.Is(err, ErrKeyClosed) {
		t.Fatalf("expected ErrKeyClosed, got %v", err)
	}
	if k.String() != "(BlowfishKey closed)" {
		t.Fatalf("unexpected summary %q", k.String())
	}
}

func TestStringDoesNotLeakKey(t *testing.T) {
	k, err := NewBlowfishKey([]byte("super-secret-key"))
	if err != nil {
		t.Fatalf("NewBlowfishKey error: %v", err)
	}
	defer k.Close()

	s := k.String()
	if strings.Contains(s, "super-secret-key") {
		t.Fatalf("summary leaks key material: %q", s)
	}
	if !strings.Contains(s, "len=16") || !strings.Contains(s, k.Fingerprint()) {
		t.Fatalf("unexpected summary %q", s)
	}
}

func TestSessionReleasesKey(t *testing.T) {
	k, err := GenerateBlowfishKey(32)
	if err != nil {
		t.Fatalf("GenerateBlowfishKey error: %v", err)
	}
	s := session.New(session.NewIDGenerator(), session.EncryptAttributes{}, k, nil, 0)
	c := s.Clone()

	s.Release()
	if k.Closed() {
		t.Fatalf("key closed while a handle remains")
	}
	c.Release()
	if !k.Closed() {
		t.Fatalf("key must be closed with the last handle")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	p := KDFParams{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLength: 16}
	secret := []byte("shared-secret-material")
	salt := []byte("0123456789abcdef")

	a, err := DeriveKey(secret, salt, p)
	if err != nil {
		t.Fatalf("DeriveKey error: %v", err)
	}
	b, err := DeriveKey(secret, salt, p)
	if err != nil {
		t.Fatalf("DeriveKey error: %v", err)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("derivation must be deterministic")
	}

	other, err := DeriveKey(secret, []byte("fedcba9876543210"), p)
	if err != nil {
		t.Fatalf("DeriveKey error: %v", err)
	}
	if other.Fingerprint() == a.Fingerprint() {
		t.Fatalf("different salt must give a different key")
	}
}

func TestDeriveKeyRejectsWeakInput(t *testing.T) {
	p := DefaultKDFParams()
	if _, err := DeriveKey([]byte("short"), []byte("0123456789abcdef"), p); err == nil {
		t.Fatalf("expected short secret rejected")
	}
	if _, err := DeriveKey([]byte("shared-secret-material"), []byte("salt"), p); err == nil {
		t.Fatalf("expected short salt rejected")
	}
	p.Memory = 1024
	if err := p.Validate(); err == nil {
		t.Fatalf("expected low memory rejected")
	}
	p = DefaultKDFParams()
	p.KeyLength = 64
	if err := p.Validate(); !errors.Is(err, ErrKeySize) {
		t.Fatalf("expected ErrKeySize, got %v", err)
	}
}
