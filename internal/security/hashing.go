package security

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes short one-time secrets (backup codes) with bcrypt.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with cost clamped to bcrypt's range; cost <= 0 means bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash returns the bcrypt hash of secret.
func (h *Hasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Matches reports whether secret matches hash. A malformed hash never matches.
func (h *Hasher) Matches(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
