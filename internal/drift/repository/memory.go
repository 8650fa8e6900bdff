package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"zero-trust-session-core/internal/drift/domain"
)

type fpKey struct{ user, device string }

// MemoryFingerprintRepository is an in-process FingerprintRepository.
type MemoryFingerprintRepository struct {
	mu   sync.Mutex
	m    map[fpKey]*domain.StoredFingerprint
	nowF func() time.Time
}

func NewMemoryFingerprintRepository() *MemoryFingerprintRepository {
	return &MemoryFingerprintRepository{m: make(map[fpKey]*domain.StoredFingerprint), nowF: time.Now}
}

func (r *MemoryFingerprintRepository) Get(ctx context.Context, userID, deviceID string) (*domain.StoredFingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[fpKey{userID, deviceID}]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.Fingerprint = cloneFingerprint(s.Fingerprint)
	if s.Previous != nil {
		p := cloneFingerprint(*s.Previous)
		cp.Previous = &p
	}
	return &cp, nil
}

func (r *MemoryFingerprintRepository) Save(ctx context.Context, userID, deviceID string, fp *domain.Fingerprint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := fpKey{userID, deviceID}
	next := &domain.StoredFingerprint{UserID: userID, DeviceID: deviceID, Fingerprint: cloneFingerprint(*fp), UpdatedAt: r.nowF()}
	if cur, ok := r.m[k]; ok {
		prev := cur.Fingerprint
		next.Previous = &prev
	}
	r.m[k] = next
	return nil
}

func cloneFingerprint(fp domain.Fingerprint) domain.Fingerprint {
	fp.Plugins = slices.Clone(fp.Plugins)
	fp.Fonts = slices.Clone(fp.Fonts)
	return fp
}

// MemoryDriftLogRepository is an in-process DriftLogRepository.
type MemoryDriftLogRepository struct {
	mu      sync.Mutex
	records []*domain.Record
}

func NewMemoryDriftLogRepository() *MemoryDriftLogRepository {
	return &MemoryDriftLogRepository{}
}

func (r *MemoryDriftLogRepository) Create(ctx context.Context, rec *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	cp.Result.Details = slices.Clone(rec.Result.Details)
	r.records = append(r.records, &cp)
	return nil
}

func (r *MemoryDriftLogRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []*domain.Record
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		if rec := r.records[i]; rec.UserID == userID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}
