package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"zero-trust-session-core/internal/db"
	"zero-trust-session-core/internal/drift/domain"
)

type PostgresFingerprintRepository struct {
	conn    db.DBTX
	timeout time.Duration
}

func NewPostgresFingerprintRepository(conn db.DBTX, timeout time.Duration) *PostgresFingerprintRepository {
	return &PostgresFingerprintRepository{conn: conn, timeout: timeout}
}

// Get returns the stored fingerprint, or nil if not found. Undecodable JSON yields ErrCorruptFingerprint.
func (r *PostgresFingerprintRepository) Get(ctx context.Context, userID, deviceID string) (*domain.StoredFingerprint, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		cur, prev []byte
		s         = domain.StoredFingerprint{UserID: userID, DeviceID: deviceID}
	)
	err := r.conn.QueryRowContext(ctx, `
SELECT fingerprint, previous, updated_at FROM device_fingerprints WHERE user_id = $1 AND device_id = $2`,
		userID, deviceID).Scan(&cur, &prev, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, db.Classify(err)
	}
	fp, err := domain.ParseFingerprint(cur)
	if err != nil {
		return nil, err
	}
	s.Fingerprint = *fp
	if prev != nil {
		if s.Previous, err = domain.ParseFingerprint(prev); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// Save upserts fp, moving the current value into previous.
func (r *PostgresFingerprintRepository) Save(ctx context.Context, userID, deviceID string, fp *domain.Fingerprint) error {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := json.Marshal(fp)
	if err != nil {
		return err
	}
	_, err = r.conn.ExecContext(ctx, `
INSERT INTO device_fingerprints (user_id, device_id, fingerprint, previous, updated_at)
VALUES ($1, $2, $3, NULL, now())
ON CONFLICT (user_id, device_id) DO UPDATE SET
	previous = device_fingerprints.fingerprint,
	fingerprint = EXCLUDED.fingerprint,
	updated_at = EXCLUDED.updated_at`, userID, deviceID, raw)
	return db.Classify(err)
}

type PostgresDriftLogRepository struct {
	conn    db.DBTX
	timeout time.Duration
}

func NewPostgresDriftLogRepository(conn db.DBTX, timeout time.Duration) *PostgresDriftLogRepository {
	return &PostgresDriftLogRepository{conn: conn, timeout: timeout}
}

// Create inserts a drift record. The record must have ID set.
func (r *PostgresDriftLogRepository) Create(ctx context.Context, rec *domain.Record) error {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()

	details, err := json.Marshal(rec.Result.Details)
	if err != nil {
		return err
	}
	res := rec.Result
	_, err = r.conn.ExecContext(ctx, `
INSERT INTO device_drift_logs (id, user_id, device_id, similarity_score, status, action, severity,
	requires_mfa, requires_admin_review, blocked, details_json, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.UserID, rec.DeviceID, res.Similarity, string(res.Status), string(res.Action), string(res.Severity),
		res.RequiresMFA, res.RequiresAdminReview, res.Blocked, details, rec.CreatedAt)
	return db.Classify(err)
}

// ListByUser returns the user's drift records, newest first.
func (r *PostgresDriftLogRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Record, error) {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.conn.QueryContext(ctx, `
SELECT id, user_id, device_id, similarity_score, status, action, severity,
	requires_mfa, requires_admin_review, blocked, details_json, created_at
FROM device_drift_logs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		var (
			rec                      domain.Record
			status, action, severity string
			details                  []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.DeviceID, &rec.Result.Similarity, &status, &action, &severity,
			&rec.Result.RequiresMFA, &rec.Result.RequiresAdminReview, &rec.Result.Blocked, &details, &rec.CreatedAt); err != nil {
			return nil, db.Classify(err)
		}
		rec.Result.Status = domain.Status(status)
		rec.Result.Action = domain.Action(action)
		rec.Result.Severity = domain.Severity(severity)
		if err := json.Unmarshal(details, &rec.Result.Details); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, db.Classify(rows.Err())
}
