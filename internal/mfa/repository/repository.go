package repository

import (
	"context"
	"time"

	"zero-trust-session-core/internal/mfa/domain"
)

// Repository defines persistence for MFA credentials. Every state change is a
// conditional write so concurrent requests cannot both succeed.
type Repository interface {
	// Get returns the credential for userID, or nil if none exists.
	Get(ctx context.Context, userID string) (*domain.Credential, error)
	// SavePending stores c as a pending enrollment, replacing any pending or disabled
	// credential but keeping its last disable record. Returns false when an enabled
	// credential already exists.
	SavePending(ctx context.Context, c *domain.Credential) (bool, error)
	// Enable flips a pending credential to enabled and records step as used.
	Enable(ctx context.Context, userID string, step int64, at time.Time) (bool, error)
	// MarkStepUsed records step when it is newer than the last used step.
	MarkStepUsed(ctx context.Context, userID string, step int64) (bool, error)
	// ConsumeBackupCode removes hash from an enabled credential and returns how many remain.
	ConsumeBackupCode(ctx context.Context, userID, hash string) (remaining int, ok bool, err error)
	// Disable turns off an enabled or pending credential, recording who and when.
	Disable(ctx context.Context, userID, adminID string, at time.Time) (bool, error)
}
