package handler

import (
	"time"

	driftdomain "zero-trust-session-core/internal/drift/domain"
)

type Empty struct{}

type SetupMFARequest struct {
	AccountName string `json:"accountName,omitempty"`
}

type SetupMFAResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioningUri"`
	QRCodePNG       []byte   `json:"qrCodePng,omitempty"`
	BackupCodes     []string `json:"backupCodes"`
}

type ConfirmMFARequest struct {
	Code string `json:"code"`
}

type DisableMFARequest struct {
	UserID string `json:"userId"`
}

type MFAStatusResponse struct {
	Enabled              bool       `json:"enabled"`
	Pending              bool       `json:"pending"`
	RemainingBackupCodes int        `json:"remainingBackupCodes"`
	DisabledBy           string     `json:"disabledBy,omitempty"`
	DisabledAt           *time.Time `json:"disabledAt,omitempty"`
}

// LoginRequest is sent by the upstream that already verified the user's password.
type LoginRequest struct {
	UserID      string                   `json:"userId"`
	DeviceID    string                   `json:"deviceId"`
	Fingerprint *driftdomain.Fingerprint `json:"fingerprint"`
	MFACode     string                   `json:"mfaCode,omitempty"`
	// BypassReason requests an MFA bypass granted by the calling administrator.
	BypassReason string `json:"bypassReason,omitempty"`
}

type LoginResponse struct {
	Outcome              string              `json:"outcome"`
	SessionID            string              `json:"sessionId,omitempty"`
	AccessToken          string              `json:"accessToken,omitempty"`
	RefreshToken         string              `json:"refreshToken,omitempty"`
	AccessExpiresAt      *time.Time          `json:"accessExpiresAt,omitempty"`
	ExpiresAt            *time.Time          `json:"expiresAt,omitempty"`
	MFAVerified          bool                `json:"mfaVerified"`
	NewDevice            bool                `json:"newDevice"`
	Drift                *driftdomain.Result `json:"drift,omitempty"`
	Review               bool                `json:"review,omitempty"`
	RemainingBackupCodes int                 `json:"remainingBackupCodes,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	SessionID        string    `json:"sessionId"`
	AccessToken      string    `json:"accessToken"`
	ExpiresInSeconds int64     `json:"expiresIn"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
}

type LogoutRequest struct {
	// SessionID defaults to the caller's session.
	SessionID string `json:"sessionId,omitempty"`
}

type LogoutAllRequest struct {
	// UserID defaults to the caller; other users require an administrator.
	UserID string `json:"userId,omitempty"`
}

type LogoutAllResponse struct {
	Terminated int64 `json:"terminated"`
}

type ValidateRequest struct {
	AccessToken string `json:"accessToken"`
}

type ValidateResponse struct {
	Valid       bool       `json:"valid"`
	Expired     bool       `json:"expired"`
	UserID      string     `json:"userId,omitempty"`
	SessionID   string     `json:"sessionId,omitempty"`
	DeviceID    string     `json:"deviceId,omitempty"`
	MFAVerified bool       `json:"mfaVerified,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

type SessionInfo struct {
	SessionID    string    `json:"sessionId"`
	DeviceID     string    `json:"deviceId"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	MFAVerified  bool      `json:"mfaVerified"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Current      bool      `json:"current,omitempty"`
}

type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type DriftHistoryRequest struct {
	// UserID defaults to the caller; other users require an administrator.
	UserID string `json:"userId,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type DriftRecord struct {
	ID        string             `json:"id"`
	DeviceID  string             `json:"deviceId"`
	Result    driftdomain.Result `json:"result"`
	CreatedAt time.Time          `json:"createdAt"`
}

type DriftHistoryResponse struct {
	Records []DriftRecord `json:"records"`
}
