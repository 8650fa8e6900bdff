package repository

import (
	"context"
	"time"

	"zero-trust-session-core/internal/session/domain"
)

// TokenUpdate replaces the token hashes of a session after a refresh.
type TokenUpdate struct {
	SessionID string
	// ExpectedRefreshHash guards the write: it only applies while the stored refresh hash still equals it.
	ExpectedRefreshHash string
	AccessTokenHash     string
	RefreshTokenHash    string
	LastActivity        time.Time
	// Now rejects the update for sessions that expired in the meantime.
	Now time.Time
}

// Repository defines persistence for sessions. Writes are keyed by session id.
type Repository interface {
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// UpdateTokens applies u atomically. Returns false when the session is gone,
	// expired, or its refresh hash changed.
	UpdateTokens(ctx context.Context, u TokenUpdate) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	// EvictOldest deletes the user's sessions beyond the newest keep, never
	// touching keepID, and returns the deleted ids oldest first.
	EvictOldest(ctx context.Context, userID, keepID string, keep int) ([]string, error)
	// DeleteExpired removes sessions with expires_at <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// ListByUser returns the user's sessions that are live at now, newest first.
	ListByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error)
}
