// Package session issues, validates, refreshes, and revokes signed session tokens.
package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"zero-trust-session-core/internal/security"
	"zero-trust-session-core/internal/session/domain"
	"zero-trust-session-core/internal/session/repository"
)

var (
	// ErrInvalidRefreshToken is returned for a forged, foreign, or revoked refresh token.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenExpired is returned when the refresh token or its session is past its lifetime.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrRefreshTokenReuse is returned, with rotation enabled, when a superseded refresh
	// token is presented. The session is terminated.
	ErrRefreshTokenReuse = errors.New("refresh token reuse detected")
)

// ReuseError identifies the session terminated for refresh token reuse. It matches ErrRefreshTokenReuse.
type ReuseError struct {
	SessionID string
	UserID    string
}

func (e *ReuseError) Error() string        { return ErrRefreshTokenReuse.Error() }
func (e *ReuseError) Is(target error) bool { return target == ErrRefreshTokenReuse }

// DefaultMaxSessionsPerUser is the session cap used when Options leaves it unset.
const DefaultMaxSessionsPerUser = 5

// CreateParams describes the session to create.
type CreateParams struct {
	UserID      string
	DeviceID    string
	IP          string
	UserAgent   string
	MFAVerified bool
}

// Issued is returned by CreateSession. Raw tokens are only ever returned here and by RefreshAccessToken.
type Issued struct {
	SessionID       string
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
	// ExpiresAt is the session (refresh token) expiry.
	ExpiresAt time.Time
	// Evicted lists sessions deleted to stay within the cap.
	Evicted []string
}

// Validation is the outcome of ValidateAccessToken. Valid and Expired are never both true.
type Validation struct {
	Valid   bool
	Expired bool
	Claims  *security.Claims
}

// Refreshed is returned by RefreshAccessToken. RefreshToken is set only when rotation is enabled.
type Refreshed struct {
	SessionID       string
	AccessToken     string
	ExpiresIn       time.Duration
	AccessExpiresAt time.Time
	RefreshToken    string
}

// Options configures a Manager. Zero values select defaults.
type Options struct {
	MaxSessionsPerUser  int
	RotateRefreshTokens bool
	Now                 func() time.Time
}

// Manager owns the session lifecycle.
type Manager struct {
	repo        repository.Repository
	tokens      *security.TokenProvider
	hasher      *security.TokenHasher
	maxSessions int
	rotate      bool
	now         func() time.Time
}

// NewManager returns a Manager storing sessions in repo.
func NewManager(repo repository.Repository, tokens *security.TokenProvider, hasher *security.TokenHasher, opts Options) *Manager {
	if opts.MaxSessionsPerUser <= 0 {
		opts.MaxSessionsPerUser = DefaultMaxSessionsPerUser
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		repo:        repo,
		tokens:      tokens,
		hasher:      hasher,
		maxSessions: opts.MaxSessionsPerUser,
		rotate:      opts.RotateRefreshTokens,
		now:         opts.Now,
	}
}

// WithRepository returns a copy of m that stores sessions in repo, e.g. one bound to a transaction.
func (m *Manager) WithRepository(repo repository.Repository) *Manager {
	cp := *m
	cp.repo = repo
	return &cp
}

// ClaimsFor rebuilds the token claims a session's tokens carry.
func ClaimsFor(s *domain.Session) security.SessionClaims {
	return security.SessionClaims{
		UserID:      s.UserID,
		SessionID:   s.ID,
		DeviceID:    s.DeviceID,
		IP:          s.IPAddress,
		MFAVerified: s.MFAVerified,
	}
}

// CreateSession issues an access and refresh token pair, stores their hashes, and
// evicts the user's oldest sessions beyond the cap.
func (m *Manager) CreateSession(ctx context.Context, p CreateParams) (*Issued, error) {
	now := m.now().UTC()
	// JWT times have second precision; truncating keeps claims reconstructable from the row.
	iat := now.Truncate(time.Second)
	s := &domain.Session{
		ID:           uuid.New().String(),
		UserID:       p.UserID,
		DeviceID:     p.DeviceID,
		IPAddress:    p.IP,
		UserAgent:    p.UserAgent,
		MFAVerified:  p.MFAVerified,
		ExpiresAt:    iat.Add(m.tokens.RefreshTTL()),
		LastActivity: iat,
		CreatedAt:    now,
	}
	sc := ClaimsFor(s)
	accessExp := m.accessExpiry(iat, s.ExpiresAt)
	access, _, err := m.tokens.IssueAccessUntil(sc, iat, accessExp)
	if err != nil {
		return nil, err
	}
	refresh, _, err := m.tokens.IssueRefresh(sc, iat, s.ExpiresAt)
	if err != nil {
		return nil, err
	}
	s.AccessTokenHash = m.hasher.Hash(s.ID, access)
	s.RefreshTokenHash = m.hasher.Hash(s.ID, refresh)

	if err := m.repo.Create(ctx, s); err != nil {
		return nil, err
	}
	evicted, err := m.repo.EvictOldest(ctx, s.UserID, s.ID, m.maxSessions)
	if err != nil {
		return nil, err
	}
	if len(evicted) > 0 {
		log.Printf("session: evicted %d session(s) of user %s over cap %d", len(evicted), s.UserID, m.maxSessions)
	}
	return &Issued{
		SessionID:       s.ID,
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: accessExp,
		ExpiresAt:       s.ExpiresAt,
		Evicted:         evicted,
	}, nil
}

// ValidateAccessToken checks signature, session, stored hash, and expiry in that
// order. Tokens of revoked or unknown sessions are invalid, never expired. The
// returned error is non-nil only for store failures.
func (m *Manager) ValidateAccessToken(ctx context.Context, token string) (*Validation, error) {
	claims, err := m.tokens.Parse(token, security.UseAccess)
	if err != nil {
		return &Validation{}, nil
	}
	s, err := m.repo.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if s == nil || s.UserID != claims.UserID || !m.hasher.Equal(s.ID, token, s.AccessTokenHash) {
		return &Validation{}, nil
	}
	now := m.now()
	if claims.Expired(now) || s.Expired(now) {
		return &Validation{Expired: true, Claims: claims}, nil
	}
	return &Validation{Valid: true, Claims: claims}, nil
}

// RefreshAccessToken issues a new access token for the session the refresh token
// belongs to. The previous access token stops validating. With rotation enabled
// the refresh token is replaced too.
func (m *Manager) RefreshAccessToken(ctx context.Context, refreshToken string) (*Refreshed, error) {
	claims, err := m.tokens.Parse(refreshToken, security.UseRefresh)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	s, err := m.repo.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if s == nil || s.UserID != claims.UserID {
		return nil, ErrInvalidRefreshToken
	}
	if !m.hasher.Equal(s.ID, refreshToken, s.RefreshTokenHash) {
		if m.rotate {
			// A correctly signed but superseded token means it was copied.
			if _, err := m.repo.Delete(ctx, s.ID); err != nil {
				return nil, err
			}
			log.Printf("session: refresh token reuse on session %s of user %s; session terminated", s.ID, s.UserID)
			return nil, &ReuseError{SessionID: s.ID, UserID: s.UserID}
		}
		return nil, ErrInvalidRefreshToken
	}
	now := m.now().UTC()
	if claims.Expired(now) || s.Expired(now) {
		return nil, ErrRefreshTokenExpired
	}

	iat := now.Truncate(time.Second)
	accessExp := m.accessExpiry(iat, s.ExpiresAt)
	if !accessExp.After(iat) {
		return nil, ErrRefreshTokenExpired
	}
	sc := ClaimsFor(s)
	access, _, err := m.tokens.IssueAccessUntil(sc, iat, accessExp)
	if err != nil {
		return nil, err
	}
	out := &Refreshed{
		SessionID:       s.ID,
		AccessToken:     access,
		ExpiresIn:       accessExp.Sub(iat),
		AccessExpiresAt: accessExp,
	}
	newRefreshHash := s.RefreshTokenHash
	if m.rotate {
		if out.RefreshToken, _, err = m.tokens.IssueRefresh(sc, iat, s.ExpiresAt); err != nil {
			return nil, err
		}
		newRefreshHash = m.hasher.Hash(s.ID, out.RefreshToken)
	}
	ok, err := m.repo.UpdateTokens(ctx, repository.TokenUpdate{
		SessionID:           s.ID,
		ExpectedRefreshHash: s.RefreshTokenHash,
		AccessTokenHash:     m.hasher.Hash(s.ID, access),
		RefreshTokenHash:    newRefreshHash,
		LastActivity:        iat,
		Now:                 now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		// Terminated, expired, or rotated by a concurrent refresh since we read it.
		return nil, ErrInvalidRefreshToken
	}
	return out, nil
}

// accessExpiry is iat + access TTL, capped one second before the session expiry so
// an access token never outlives its refresh token.
func (m *Manager) accessExpiry(iat, sessionExp time.Time) time.Time {
	exp := iat.Add(m.tokens.AccessTTL())
	if limit := sessionExp.Add(-time.Second); exp.After(limit) {
		return limit
	}
	return exp
}

// GetSession returns the session with id, or nil.
func (m *Manager) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return m.repo.GetByID(ctx, id)
}

// ListUserSessions returns the user's live sessions, newest first.
func (m *Manager) ListUserSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	return m.repo.ListByUser(ctx, userID, m.now())
}

// TerminateSession hard-deletes the session. It reports whether a session was deleted.
func (m *Manager) TerminateSession(ctx context.Context, id string) (bool, error) {
	return m.repo.Delete(ctx, id)
}

// TerminateAllUserSessions hard-deletes every session of the user.
func (m *Manager) TerminateAllUserSessions(ctx context.Context, userID string) (int64, error) {
	return m.repo.DeleteByUser(ctx, userID)
}

// CleanupExpiredSessions deletes sessions past their expiry. Safe to run concurrently with traffic.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpired(ctx, m.now())
}
