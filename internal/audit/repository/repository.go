package repository

import (
	"context"

	"zero-trust-session-core/internal/audit/domain"
)

// Repository defines persistence for audit logs. Entries are append-only.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListBySubject returns the newest entries about subjectID first, at most limit (limit <= 0 means 50).
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]*domain.AuditLog, error)
}

const defaultListLimit = 50
