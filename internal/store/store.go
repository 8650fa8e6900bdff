// Package store binds the drift, MFA credential and session repositories to a unit
// of work so a login's fingerprint read, drift record, MFA step or backup-code use,
// baseline update and session creation commit together.
package store

import (
	"context"
	"database/sql"
	"time"

	"zero-trust-session-core/internal/db"
	driftrepo "zero-trust-session-core/internal/drift/repository"
	mfarepo "zero-trust-session-core/internal/mfa/repository"
	sessionrepo "zero-trust-session-core/internal/session/repository"
)

// Repos is the set of repositories a unit of work operates on.
type Repos struct {
	Fingerprints driftrepo.FingerprintRepository
	DriftLogs    driftrepo.DriftLogRepository
	Credentials  mfarepo.Repository
	Sessions     sessionrepo.Repository
}

// TxRunner runs fn with repositories bound to one unit of work, serialized per
// (user, device). fn's error aborts the unit of work and is returned as is.
type TxRunner interface {
	InDeviceTx(ctx context.Context, userID, deviceID string, fn func(Repos) error) error
}

// PostgresTxRunner runs each unit of work in a Postgres transaction holding a
// transaction-scoped advisory lock on the (user, device) pair.
type PostgresTxRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresTxRunner(conn *sql.DB, timeout time.Duration) *PostgresTxRunner {
	return &PostgresTxRunner{db: conn, timeout: timeout}
}

// Repos returns repositories that run outside any transaction.
func (r *PostgresTxRunner) Repos() Repos {
	return postgresRepos(r.db, r.timeout)
}

func (r *PostgresTxRunner) InDeviceTx(ctx context.Context, userID, deviceID string, fn func(Repos) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return db.Classify(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	lockCtx, cancel := db.WithTimeout(ctx, r.timeout)
	_, err = tx.ExecContext(lockCtx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey(userID, deviceID))
	cancel()
	if err != nil {
		return db.Classify(err)
	}
	if err = fn(postgresRepos(tx, r.timeout)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return db.Classify(err)
	}
	return nil
}

func postgresRepos(conn db.DBTX, timeout time.Duration) Repos {
	return Repos{
		Fingerprints: driftrepo.NewPostgresFingerprintRepository(conn, timeout),
		DriftLogs:    driftrepo.NewPostgresDriftLogRepository(conn, timeout),
		Credentials:  mfarepo.NewPostgresRepository(conn, timeout),
		Sessions:     sessionrepo.NewPostgresRepository(conn, timeout),
	}
}

func lockKey(userID, deviceID string) string {
	return userID + "|" + deviceID
}
