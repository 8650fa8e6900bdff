package repository

import (
	"context"
	"sync"

	"zero-trust-session-core/internal/audit/domain"
)

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	cp.Metadata = append([]byte(nil), a.Metadata...)
	r.entries = append(r.entries, cp)
	return nil
}

// ListBySubject returns entries in reverse insertion order.
func (r *MemoryRepository) ListBySubject(ctx context.Context, subjectID string, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.AuditLog
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].SubjectID == subjectID {
			cp := r.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}
