package store

import (
	"context"
	"sync"

	driftrepo "zero-trust-session-core/internal/drift/repository"
	mfarepo "zero-trust-session-core/internal/mfa/repository"
	sessionrepo "zero-trust-session-core/internal/session/repository"
)

// MemoryTxRunner serializes units of work per (user, device) over shared
// in-memory repositories. Writes are not rolled back when fn fails.
type MemoryTxRunner struct {
	repos Repos

	mu    sync.Mutex
	locks map[string]*deviceLock
}

type deviceLock struct {
	mu   sync.Mutex
	refs int
}

// NewMemoryTxRunner returns a runner over fresh in-memory repositories.
func NewMemoryTxRunner() *MemoryTxRunner {
	return &MemoryTxRunner{
		repos: Repos{
			Fingerprints: driftrepo.NewMemoryFingerprintRepository(),
			DriftLogs:    driftrepo.NewMemoryDriftLogRepository(),
			Credentials:  mfarepo.NewMemoryRepository(),
			Sessions:     sessionrepo.NewMemoryRepository(),
		},
		locks: make(map[string]*deviceLock),
	}
}

// Repos returns the shared repositories.
func (r *MemoryTxRunner) Repos() Repos {
	return r.repos
}

func (r *MemoryTxRunner) InDeviceTx(ctx context.Context, userID, deviceID string, fn func(Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := lockKey(userID, deviceID)
	l := r.acquire(key)
	defer r.release(key, l)
	return fn(r.repos)
}

func (r *MemoryTxRunner) acquire(key string) *deviceLock {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &deviceLock{}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()
	l.mu.Lock()
	return l
}

func (r *MemoryTxRunner) release(key string, l *deviceLock) {
	l.mu.Unlock()
	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
	r.mu.Unlock()
}
