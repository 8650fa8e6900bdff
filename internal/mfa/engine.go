// Package mfa implements TOTP enrollment and verification with single-use backup codes.
package mfa

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log"
	"time"

	"zero-trust-session-core/internal/mfa/domain"
	"zero-trust-session-core/internal/mfa/repository"
	"zero-trust-session-core/internal/security"
)

var (
	// ErrAlreadyEnabled is returned by Setup when the user already has MFA enabled.
	ErrAlreadyEnabled = errors.New("mfa already enabled")
	// ErrNoPendingSetup is returned by ConfirmSetup when there is no unexpired pending setup.
	ErrNoPendingSetup = errors.New("no pending mfa setup")
	// ErrNotEnrolled is returned by Disable when there is nothing to disable.
	ErrNotEnrolled = errors.New("mfa not enrolled")
	// ErrMalformedSecret means a stored secret cannot be opened or decoded. It is a
	// configuration error, not an authentication failure.
	ErrMalformedSecret = errors.New("mfa secret malformed")
	// ErrAdminRequired is returned by Disable without an acting admin id.
	ErrAdminRequired = errors.New("admin id required")
)

// Reason explains a failed Authenticate.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonNotEnrolled Reason = "not_enrolled"
	ReasonInvalidCode Reason = "invalid_code"
	ReasonCodeReused  Reason = "code_reused"
)

// SetupResult is returned once by Setup; the secret and backup codes are not retrievable later.
type SetupResult struct {
	Secret          string
	ProvisioningURI string
	QRCodePNG       []byte
	BackupCodes     []string
}

// AuthResult is the outcome of Authenticate. A failed verification is a result, not an error.
type AuthResult struct {
	Success              bool
	UsedBackupCode       bool
	RemainingBackupCodes int
	Reason               Reason
}

// Status summarizes a user's enrollment.
type Status struct {
	Enabled              bool
	Pending              bool
	RemainingBackupCodes int
	// DisabledBy and DisabledAt describe the most recent disable, kept across re-enrollment.
	DisabledBy           string
	DisabledAt           *time.Time
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	// Issuer labels the account in authenticator apps.
	Issuer string
	// SetupTTL bounds how long a pending setup can be confirmed. Default 10m.
	SetupTTL time.Duration
	Now      func() time.Time
	Rand     io.Reader
}

// Engine manages TOTP credentials and backup codes.
type Engine struct {
	repo     repository.Repository
	hasher   *security.Hasher
	sealer   security.Sealer
	issuer   string
	setupTTL time.Duration
	now      func() time.Time
	rand     io.Reader
}

// NewEngine returns an Engine. sealer may be nil to store secrets unsealed.
func NewEngine(repo repository.Repository, hasher *security.Hasher, sealer security.Sealer, opts Options) *Engine {
	if sealer == nil {
		sealer = security.PlainSealer{}
	}
	if opts.Issuer == "" {
		opts.Issuer = "ZeroTrust"
	}
	if opts.SetupTTL <= 0 {
		opts.SetupTTL = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	return &Engine{
		repo:     repo,
		hasher:   hasher,
		sealer:   sealer,
		issuer:   opts.Issuer,
		setupTTL: opts.SetupTTL,
		now:      opts.Now,
		rand:     opts.Rand,
	}
}

// WithRepository returns a copy of e that reads and writes credentials through repo,
// e.g. repositories bound to a login transaction.
func (e *Engine) WithRepository(repo repository.Repository) *Engine {
	c := *e
	c.repo = repo
	return &c
}

// Setup creates a pending enrollment with a fresh secret and backup codes, replacing
// any earlier pending or disabled credential. accountName labels the entry in the
// authenticator app; it defaults to userID.
func (e *Engine) Setup(ctx context.Context, userID, accountName string) (*SetupResult, error) {
	cur, err := e.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cur != nil && cur.Enabled {
		return nil, ErrAlreadyEnabled
	}
	if accountName == "" {
		accountName = userID
	}
	key, err := generateKey(e.issuer, accountName, e.rand)
	if err != nil {
		return nil, err
	}
	codes, err := generateBackupCodes(e.rand, BackupCodeCount)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		if hashes[i], err = e.hasher.Hash(c); err != nil {
			return nil, err
		}
	}
	sealed, err := e.sealer.Seal(key.secret)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	saved, err := e.repo.SavePending(ctx, &domain.Credential{
		UserID:           userID,
		Secret:           sealed,
		BackupCodeHashes: hashes,
		PendingSince:     &now,
		CreatedAt:        now,
	})
	if err != nil {
		return nil, err
	}
	if !saved {
		return nil, ErrAlreadyEnabled
	}
	return &SetupResult{
		Secret:          key.secret,
		ProvisioningURI: key.uri,
		QRCodePNG:       key.qrPNG,
		BackupCodes:     codes,
	}, nil
}

// ConfirmSetup verifies code against the pending secret and enables MFA on success.
// A wrong code returns (false, nil) and leaves the setup pending.
func (e *Engine) ConfirmSetup(ctx context.Context, userID, code string) (bool, error) {
	cred, err := e.repo.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	now := e.now()
	if !cred.Pending() || now.Sub(*cred.PendingSince) > e.setupTTL {
		return false, ErrNoPendingSetup
	}
	secret, err := e.openSecret(cred)
	if err != nil {
		return false, err
	}
	code = normalizeCode(code)
	if !isTOTPShape(code) {
		return false, nil
	}
	step, ok, err := verifyTOTP(secret, code, now)
	if err != nil || !ok {
		return false, err
	}
	enabled, err := e.repo.Enable(ctx, userID, step, now.UTC())
	if err != nil {
		return false, err
	}
	if !enabled {
		return false, ErrNoPendingSetup
	}
	return true, nil
}

// Authenticate verifies a TOTP code, falling back to a backup code. Each TOTP step
// and each backup code is accepted at most once.
func (e *Engine) Authenticate(ctx context.Context, userID, code string) (*AuthResult, error) {
	cred, err := e.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil || !cred.Enabled {
		return &AuthResult{Reason: ReasonNotEnrolled}, nil
	}
	code = normalizeCode(code)

	if isTOTPShape(code) {
		secret, err := e.openSecret(cred)
		if err != nil {
			return nil, err
		}
		step, ok, err := verifyTOTP(secret, code, e.now())
		if err != nil {
			return nil, err
		}
		if ok {
			fresh, err := e.repo.MarkStepUsed(ctx, userID, step)
			if err != nil {
				return nil, err
			}
			if !fresh {
				return &AuthResult{Reason: ReasonCodeReused, RemainingBackupCodes: len(cred.BackupCodeHashes)}, nil
			}
			return &AuthResult{Success: true, RemainingBackupCodes: len(cred.BackupCodeHashes)}, nil
		}
	}

	if isBackupShape(code) {
		for _, h := range cred.BackupCodeHashes {
			if !e.hasher.Matches(h, code) {
				continue
			}
			remaining, ok, err := e.repo.ConsumeBackupCode(ctx, userID, h)
			if err != nil {
				return nil, err
			}
			if !ok {
				return &AuthResult{Reason: ReasonCodeReused, RemainingBackupCodes: len(cred.BackupCodeHashes) - 1}, nil
			}
			if remaining <= 2 {
				log.Printf("mfa: user %s has %d backup codes left", userID, remaining)
			}
			return &AuthResult{Success: true, UsedBackupCode: true, RemainingBackupCodes: remaining}, nil
		}
	}
	return &AuthResult{Reason: ReasonInvalidCode, RemainingBackupCodes: len(cred.BackupCodeHashes)}, nil
}

// Disable turns MFA off for userID on behalf of adminID. Authorization is the caller's job.
func (e *Engine) Disable(ctx context.Context, userID, adminID string) error {
	if adminID == "" {
		return ErrAdminRequired
	}
	ok, err := e.repo.Disable(ctx, userID, adminID, e.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotEnrolled
	}
	log.Printf("mfa: disabled for user %s by %s", userID, adminID)
	return nil
}

// IsEnabled reports whether userID has confirmed MFA.
func (e *Engine) IsEnabled(ctx context.Context, userID string) (bool, error) {
	cred, err := e.repo.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return cred != nil && cred.Enabled, nil
}

// Status returns enrollment details for userID.
func (e *Engine) Status(ctx context.Context, userID string) (*Status, error) {
	cred, err := e.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return &Status{}, nil
	}
	return &Status{
		Enabled:              cred.Enabled,
		Pending:              cred.Pending() && e.now().Sub(*cred.PendingSince) <= e.setupTTL,
		RemainingBackupCodes: len(cred.BackupCodeHashes),
		DisabledBy:           cred.DisabledBy,
		DisabledAt:           cred.DisabledAt,
	}, nil
}

func (e *Engine) openSecret(cred *domain.Credential) (string, error) {
	secret, err := e.sealer.Open(cred.Secret)
	if err != nil || secret == "" {
		log.Printf("mfa: cannot open secret for user %s: %v", cred.UserID, err)
		return "", ErrMalformedSecret
	}
	return secret, nil
}
