package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"zero-trust-session-core/internal/db"
	"zero-trust-session-core/internal/mfa/domain"
)

type PostgresRepository struct {
	conn    db.DBTX
	timeout time.Duration
}

// NewPostgresRepository returns an MFA credential repository over conn. Each call is bounded by timeout.
func NewPostgresRepository(conn db.DBTX, timeout time.Duration) *PostgresRepository {
	return &PostgresRepository{conn: conn, timeout: timeout}
}

const credentialColumns = `user_id, secret, backup_codes, enabled, pending_since, last_used_step,
	disabled_by, disabled_at, created_at, updated_at`

// Get returns the credential for userID, or nil if not found.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*domain.Credential, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		c          domain.Credential
		codes      []byte
		pending    sql.NullTime
		disabledBy sql.NullString
		disabledAt sql.NullTime
	)
	err := r.conn.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM mfa_credentials WHERE user_id = $1`, userID).
		Scan(&c.UserID, &c.Secret, &codes, &c.Enabled, &pending, &c.LastUsedStep, &disabledBy, &disabledAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, db.Classify(err)
	}
	if err := json.Unmarshal(codes, &c.BackupCodeHashes); err != nil {
		return nil, err
	}
	c.PendingSince = nullTimePtr(pending)
	c.DisabledBy = disabledBy.String
	c.DisabledAt = nullTimePtr(disabledAt)
	return &c, nil
}

// SavePending upserts a pending credential unless an enabled one exists. The last
// disable (disabled_by, disabled_at) stays on the row.
func (r *PostgresRepository) SavePending(ctx context.Context, c *domain.Credential) (bool, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()

	codes, err := json.Marshal(c.BackupCodeHashes)
	if err != nil {
		return false, err
	}
	res, err := r.conn.ExecContext(ctx, `
INSERT INTO mfa_credentials (user_id, secret, backup_codes, enabled, pending_since, last_used_step, created_at, updated_at)
VALUES ($1, $2, $3, FALSE, $4, 0, $4, $4)
ON CONFLICT (user_id) DO UPDATE SET
	secret = EXCLUDED.secret,
	backup_codes = EXCLUDED.backup_codes,
	enabled = FALSE,
	pending_since = EXCLUDED.pending_since,
	last_used_step = 0,
	updated_at = EXCLUDED.updated_at
WHERE mfa_credentials.enabled = FALSE`,
		c.UserID, c.Secret, codes, c.PendingSince)
	return affected(res, err)
}

// Enable flips a pending credential to enabled.
func (r *PostgresRepository) Enable(ctx context.Context, userID string, step int64, at time.Time) (bool, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	res, err := r.conn.ExecContext(ctx, `
UPDATE mfa_credentials SET enabled = TRUE, pending_since = NULL, last_used_step = $2, updated_at = $3
WHERE user_id = $1 AND enabled = FALSE AND pending_since IS NOT NULL`, userID, step, at)
	return affected(res, err)
}

// MarkStepUsed advances last_used_step; it fails when step was already used.
func (r *PostgresRepository) MarkStepUsed(ctx context.Context, userID string, step int64) (bool, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	res, err := r.conn.ExecContext(ctx, `
UPDATE mfa_credentials SET last_used_step = $2, updated_at = now()
WHERE user_id = $1 AND enabled = TRUE AND last_used_step < $2`, userID, step)
	return affected(res, err)
}

// ConsumeBackupCode removes hash in a single statement; a concurrent consumer of the same code gets ok=false.
func (r *PostgresRepository) ConsumeBackupCode(ctx context.Context, userID, hash string) (int, bool, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	var remaining int
	err := r.conn.QueryRowContext(ctx, `
UPDATE mfa_credentials SET backup_codes = backup_codes - $2::text, updated_at = now()
WHERE user_id = $1 AND enabled = TRUE AND jsonb_exists(backup_codes, $2::text)
RETURNING jsonb_array_length(backup_codes)`, userID, hash).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, db.Classify(err)
	}
	return remaining, true, nil
}

// Disable turns off the credential and records the disabling admin.
func (r *PostgresRepository) Disable(ctx context.Context, userID, adminID string, at time.Time) (bool, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	res, err := r.conn.ExecContext(ctx, `
UPDATE mfa_credentials SET enabled = FALSE, pending_since = NULL, disabled_by = $2, disabled_at = $3, updated_at = $3
WHERE user_id = $1 AND (enabled = TRUE OR pending_since IS NOT NULL)`, userID, adminID, at)
	return affected(res, err)
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, db.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
