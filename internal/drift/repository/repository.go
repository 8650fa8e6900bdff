package repository

import (
	"context"

	"zero-trust-session-core/internal/drift/domain"
)

// FingerprintRepository persists the last trusted fingerprint per (user, device).
type FingerprintRepository interface {
	// Get returns the stored fingerprint, or nil if the device is new.
	Get(ctx context.Context, userID, deviceID string) (*domain.StoredFingerprint, error)
	// Save replaces the stored fingerprint, keeping the replaced one as Previous.
	Save(ctx context.Context, userID, deviceID string, fp *domain.Fingerprint) error
}

// DriftLogRepository persists drift records. Records are never updated.
type DriftLogRepository interface {
	Create(ctx context.Context, r *domain.Record) error
	// ListByUser returns the newest records first, at most limit (limit <= 0 means 50).
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Record, error)
}

const defaultListLimit = 50
