package domain

import "time"

// Credential is a user's TOTP enrollment (stored in mfa_credentials).
type Credential struct {
	UserID string
	// Secret is the base32 TOTP secret as stored: sealed when a secret key is configured.
	Secret string
	// BackupCodeHashes holds bcrypt hashes of the unused backup codes.
	BackupCodeHashes []string
	Enabled          bool
	// PendingSince is set while a setup awaits confirmation.
	PendingSince *time.Time
	// LastUsedStep is the most recent accepted TOTP time step; older or equal steps are rejected.
	LastUsedStep int64
	DisabledBy   string
	DisabledAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Pending reports whether a setup awaits confirmation.
func (c *Credential) Pending() bool {
	return c != nil && !c.Enabled && c.PendingSince != nil
}
