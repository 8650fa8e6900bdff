package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"zero-trust-session-core/internal/mfa/domain"
)

// MemoryRepository is an in-process Repository for development and tests.
type MemoryRepository struct {
	mu    sync.Mutex
	creds map[string]*domain.Credential
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{creds: make(map[string]*domain.Credential)}
}

func (r *MemoryRepository) Get(ctx context.Context, userID string) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[userID]
	if !ok {
		return nil, nil
	}
	return clone(c), nil
}

func (r *MemoryRepository) SavePending(ctx context.Context, c *domain.Credential) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created := c.CreatedAt
	cur, ok := r.creds[c.UserID]
	if ok && cur.Enabled {
		return false, nil
	}
	if created.IsZero() && c.PendingSince != nil {
		created = *c.PendingSince
	}
	n := clone(c)
	n.Enabled = false
	n.LastUsedStep = 0
	n.DisabledBy, n.DisabledAt = "", nil
	if ok {
		n.DisabledBy = cur.DisabledBy
		if cur.DisabledAt != nil {
			t := *cur.DisabledAt
			n.DisabledAt = &t
		}
	}
	n.CreatedAt = created
	n.UpdatedAt = created
	r.creds[c.UserID] = n
	return true, nil
}

func (r *MemoryRepository) Enable(ctx context.Context, userID string, step int64, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[userID]
	if !ok || !c.Pending() {
		return false, nil
	}
	c.Enabled = true
	c.PendingSince = nil
	c.LastUsedStep = step
	c.UpdatedAt = at
	return true, nil
}

func (r *MemoryRepository) MarkStepUsed(ctx context.Context, userID string, step int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[userID]
	if !ok || !c.Enabled || c.LastUsedStep >= step {
		return false, nil
	}
	c.LastUsedStep = step
	return true, nil
}

func (r *MemoryRepository) ConsumeBackupCode(ctx context.Context, userID, hash string) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[userID]
	if !ok || !c.Enabled {
		return 0, false, nil
	}
	i := slices.Index(c.BackupCodeHashes, hash)
	if i < 0 {
		return 0, false, nil
	}
	c.BackupCodeHashes = slices.Delete(c.BackupCodeHashes, i, i+1)
	return len(c.BackupCodeHashes), true, nil
}

func (r *MemoryRepository) Disable(ctx context.Context, userID, adminID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[userID]
	if !ok || (!c.Enabled && c.PendingSince == nil) {
		return false, nil
	}
	c.Enabled = false
	c.PendingSince = nil
	c.DisabledBy = adminID
	c.DisabledAt = &at
	c.UpdatedAt = at
	return true, nil
}

func clone(c *domain.Credential) *domain.Credential {
	n := *c
	n.BackupCodeHashes = slices.Clone(c.BackupCodeHashes)
	if c.PendingSince != nil {
		t := *c.PendingSince
		n.PendingSince = &t
	}
	if c.DisabledAt != nil {
		t := *c.DisabledAt
		n.DisabledAt = &t
	}
	return &n
}
