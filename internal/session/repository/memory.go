package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"zero-trust-session-core/internal/session/domain"
)

type memEntry struct {
	s   domain.Session
	seq uint64
}

// MemoryRepository is an in-process Repository. Reads take a shared lock so
// validation never waits on other readers.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*memEntry
	seq      uint64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*memEntry)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	s := e.s
	return &s, nil
}

func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.sessions[s.ID] = &memEntry{s: *s, seq: r.seq}
	return nil
}

func (r *MemoryRepository) UpdateTokens(ctx context.Context, u TokenUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[u.SessionID]
	if !ok || e.s.RefreshTokenHash != u.ExpectedRefreshHash || e.s.Expired(u.Now) {
		return false, nil
	}
	e.s.AccessTokenHash = u.AccessTokenHash
	e.s.RefreshTokenHash = u.RefreshTokenHash
	e.s.LastActivity = u.LastActivity
	return true, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok, nil
}

func (r *MemoryRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.sessions {
		if e.s.UserID == userID {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) EvictOldest(ctx context.Context, userID, keepID string, keep int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var others []*memEntry
	for _, e := range r.sessions {
		if e.s.UserID == userID && e.s.ID != keepID {
			others = append(others, e)
		}
	}
	limit := max(keep-1, 0)
	if len(others) <= limit {
		return nil, nil
	}
	sortOldestFirst(others)
	victims := others[:len(others)-limit]
	ids := make([]string, len(victims))
	for i, e := range victims {
		ids[i] = e.s.ID
		delete(r.sessions, e.s.ID)
	}
	return ids, nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.sessions {
		if e.s.Expired(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) ListByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []*memEntry
	for _, e := range r.sessions {
		if e.s.UserID == userID && !e.s.Expired(now) {
			list = append(list, e)
		}
	}
	sortOldestFirst(list)
	out := make([]*domain.Session, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		s := list[i].s
		out = append(out, &s)
	}
	return out, nil
}

func sortOldestFirst(list []*memEntry) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].s.CreatedAt.Equal(list[j].s.CreatedAt) {
			return list[i].s.CreatedAt.Before(list[j].s.CreatedAt)
		}
		return list[i].seq < list[j].seq
	})
}
