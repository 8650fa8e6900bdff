package security

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	sealedPrefix = "v1:"
	sealInfo     = "ztsession mfa secret v1"
)

var (
	// ErrSealedSecret is returned when a sealed value cannot be opened.
	ErrSealedSecret = errors.New("sealed secret cannot be opened")
)

// Sealer protects secrets at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

// PlainSealer stores secrets unchanged. It refuses to open values sealed by AEADSealer.
type PlainSealer struct{}

func (PlainSealer) Seal(plaintext string) (string, error) { return plaintext, nil }

func (PlainSealer) Open(stored string) (string, error) {
	if strings.HasPrefix(stored, sealedPrefix) {
		return "", ErrSealedSecret
	}
	return stored, nil
}

// AEADSealer seals with XChaCha20-Poly1305. Output is "v1:" + base64(nonce || ciphertext).
type AEADSealer struct {
	aead cipher.AEAD
}

// NewAEADSealer derives a 256-bit key from secret with HKDF-SHA256.
func NewAEADSealer(secret []byte) (*AEADSealer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptyHashKey
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(sealInfo)), key); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &AEADSealer{aead: aead}, nil
}

func (s *AEADSealer) Seal(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(out), nil
}

func (s *AEADSealer) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return "", ErrSealedSecret
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil || len(raw) < s.aead.NonceSize() {
		return "", ErrSealedSecret
	}
	nonce, ct := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	pt, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrSealedSecret
	}
	return string(pt), nil
}
