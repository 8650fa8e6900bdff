package repository

import (
	"context"
	"time"

	"zero-trust-session-core/internal/audit/domain"
	"zero-trust-session-core/internal/db"
)

type PostgresRepository struct {
	conn    db.DBTX
	timeout time.Duration
}

// NewPostgresRepository returns an audit log repository backed by conn.
func NewPostgresRepository(conn db.DBTX, timeout time.Duration) *PostgresRepository {
	return &PostgresRepository{conn: conn, timeout: timeout}
}

func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()

	var meta any
	if len(a.Metadata) > 0 {
		meta = []byte(a.Metadata)
	}
	_, err := r.conn.ExecContext(ctx, `
INSERT INTO audit_logs (id, actor_id, subject_id, action, resource, ip, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.ActorID, a.SubjectID, a.Action, a.Resource, a.IP, meta, a.CreatedAt)
	return db.Classify(err)
}

func (r *PostgresRepository) ListBySubject(ctx context.Context, subjectID string, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	ctx, cancel := db.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.conn.QueryContext(ctx, `
SELECT id, actor_id, subject_id, action, resource, ip, metadata, created_at
FROM audit_logs WHERE subject_id = $1
ORDER BY created_at DESC, id DESC LIMIT $2`, subjectID, limit)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a    domain.AuditLog
			meta []byte
		)
		if err := rows.Scan(&a.ID, &a.ActorID, &a.SubjectID, &a.Action, &a.Resource, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, db.Classify(err)
		}
		a.Metadata = meta
		out = append(out, &a)
	}
	return out, db.Classify(rows.Err())
}
