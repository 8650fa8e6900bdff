package repository

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"zero-trust-session-core/internal/db"
	"zero-trust-session-core/internal/session/domain"
)

type PostgresRepository struct {
	conn    db.DBTX
	timeout time.Duration
}

// NewPostgresRepository returns a session repository over conn. Each call is bounded by timeout.
func NewPostgresRepository(conn db.DBTX, timeout time.Duration) *PostgresRepository {
	return &PostgresRepository{conn: conn, timeout: timeout}
}

const sessionColumns = `session_id, user_id, device_id, ip, user_agent, access_token_hash,
	refresh_token_hash, mfa_verified, expires_at, last_activity, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.UserID, &s.DeviceID, &s.IPAddress, &s.UserAgent, &s.AccessTokenHash,
		&s.RefreshTokenHash, &s.MFAVerified, &s.ExpiresAt, &s.LastActivity, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	s, err := scanSession(r.conn.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE session_id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, db.Classify(err)
	}
	return s, nil
}

// Create persists the session. The session must have ID set.
// Inside a transaction it first takes a per-user advisory lock held until commit, so
// concurrent logins of one user on different devices insert and evict one at a time
// and the cap holds. The two-key lock space does not overlap the per-device lock.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	if _, err := r.conn.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('user_sessions'), hashtext($1))`, s.UserID); err != nil {
		return db.Classify(err)
	}
	_, err := r.conn.ExecContext(ctx, `
INSERT INTO user_sessions (`+sessionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.UserID, s.DeviceID, s.IPAddress, s.UserAgent, s.AccessTokenHash,
		s.RefreshTokenHash, s.MFAVerified, s.ExpiresAt, s.LastActivity, s.CreatedAt)
	return db.Classify(err)
}

// UpdateTokens is a single conditional UPDATE, so the row lock serializes concurrent refreshes.
func (r *PostgresRepository) UpdateTokens(ctx context.Context, u TokenUpdate) (bool, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	res, err := r.conn.ExecContext(ctx, `
UPDATE user_sessions
SET access_token_hash = $3, refresh_token_hash = $4, last_activity = $5
WHERE session_id = $1 AND refresh_token_hash = $2 AND expires_at > $6`,
		u.SessionID, u.ExpectedRefreshHash, u.AccessTokenHash, u.RefreshTokenHash, u.LastActivity, u.Now)
	if err != nil {
		return false, db.Classify(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete hard-deletes the session.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := r.exec(ctx, `DELETE FROM user_sessions WHERE session_id = $1`, id)
	return n > 0, err
}

// DeleteByUser hard-deletes every session of the user.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.exec(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID)
}

// EvictOldest deletes sessions beyond the newest keep by creation time.
func (r *PostgresRepository) EvictOldest(ctx context.Context, userID, keepID string, keep int) ([]string, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	offset := keep - 1
	if offset < 0 {
		offset = 0
	}
	rows, err := r.conn.QueryContext(ctx, `
DELETE FROM user_sessions WHERE session_id IN (
	SELECT session_id FROM user_sessions
	WHERE user_id = $1 AND session_id <> $2
	ORDER BY created_at DESC, session_id DESC
	OFFSET $3
)
RETURNING session_id, created_at`, userID, keepID, offset)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	type evicted struct {
		id string
		at time.Time
	}
	var list []evicted
	for rows.Next() {
		var e evicted
		if err := rows.Scan(&e.id, &e.at); err != nil {
			return nil, db.Classify(err)
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	slices.SortFunc(list, func(a, b evicted) int { return a.at.Compare(b.at) })
	ids := make([]string, len(list))
	for i, e := range list {
		ids[i] = e.id
	}
	return ids, nil
}

// DeleteExpired removes every session whose expiry has passed.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.exec(ctx, `DELETE FROM user_sessions WHERE expires_at <= $1`, now)
}

// ListByUser returns the user's live sessions, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	rows, err := r.conn.QueryContext(ctx, `SELECT `+sessionColumns+` FROM user_sessions
WHERE user_id = $1 AND expires_at > $2 ORDER BY created_at DESC`, userID, now)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, s)
	}
	return out, db.Classify(rows.Err())
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, db.Classify(err)
	}
	return res.RowsAffected()
}
