package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const tokenHashInfo = "ztsession token hash v1"

// ErrEmptyHashKey is returned when a TokenHasher is built without key material.
var ErrEmptyHashKey = errors.New("token hash key is empty")

// TokenHasher computes keyed MACs of issued tokens. Only the MAC is persisted; a
// leaked session table is useless without the key. The session id salts every MAC.
type TokenHasher struct {
	key []byte
}

// NewTokenHasher derives a 32-byte MAC key from secret with HKDF-SHA256.
func NewTokenHasher(secret []byte) (*TokenHasher, error) {
	if len(secret) == 0 {
		return nil, ErrEmptyHashKey
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(tokenHashInfo)), key); err != nil {
		return nil, err
	}
	return &TokenHasher{key: key}, nil
}

// Hash returns the hex HMAC-SHA256 of token salted with sessionID.
func (h *TokenHasher) Hash(sessionID, token string) string {
	return hex.EncodeToString(h.mac(sessionID, token))
}

// Equal reports, in constant time, whether token hashes to stored for sessionID.
func (h *TokenHasher) Equal(sessionID, token, stored string) bool {
	want, err := hex.DecodeString(stored)
	if err != nil {
		return false
	}
	return hmac.Equal(h.mac(sessionID, token), want)
}

func (h *TokenHasher) mac(sessionID, token string) []byte {
	m := hmac.New(sha256.New, h.key)
	m.Write([]byte(sessionID))
	m.Write([]byte{0})
	m.Write([]byte(token))
	return m.Sum(nil)
}
