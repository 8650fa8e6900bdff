package domain

import "time"

// Session is one signed-in device for a user (stored in user_sessions). Tokens are
// never stored; only their keyed hashes are.
type Session struct {
	ID               string
	UserID           string
	DeviceID         string
	IPAddress        string
	UserAgent        string
	AccessTokenHash  string
	RefreshTokenHash string
	MFAVerified      bool
	// ExpiresAt is the refresh token expiry; the session is dead afterwards.
	ExpiresAt time.Time
	// LastActivity is the iat of the current access token.
	LastActivity time.Time
	CreatedAt    time.Time
}

// Expired reports whether the session is past its lifetime at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
