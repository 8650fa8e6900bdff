// Package service orchestrates login: fingerprint drift, login policy, MFA, and
// session issuance for one (user, device) at a time.
package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"zero-trust-session-core/internal/audit"
	"zero-trust-session-core/internal/drift"
	driftdomain "zero-trust-session-core/internal/drift/domain"
	driftrepo "zero-trust-session-core/internal/drift/repository"
	"zero-trust-session-core/internal/mfa"
	"zero-trust-session-core/internal/platform/rbac"
	"zero-trust-session-core/internal/policy/engine"
	"zero-trust-session-core/internal/session"
	sessiondomain "zero-trust-session-core/internal/session/domain"
	"zero-trust-session-core/internal/store"
	"zero-trust-session-core/internal/telemetry"
)

// Sentinel errors for auth service; handler maps them to gRPC codes.
var (
	ErrInvalidLoginRequest = errors.New("user id, device id and fingerprint are required")
	ErrInvalidMFACode      = errors.New("invalid mfa code")
	ErrBypassNotPermitted  = errors.New("bypass grant requires an administrator")
	ErrAdminRequired       = errors.New("administrator required")
	ErrSessionNotFound     = errors.New("session not found")
)

// LoginOutcome is the result class of a login attempt.
type LoginOutcome string

const (
	LoginOutcomeGranted               LoginOutcome = "granted"
	LoginOutcomeMFARequired           LoginOutcome = "mfa_required"
	LoginOutcomeMFAEnrollmentRequired LoginOutcome = "mfa_enrollment_required"
	LoginOutcomeDeviceBlocked         LoginOutcome = "device_blocked"
	// loginOutcomeMFAFailed is only reported to metrics and telemetry; callers get ErrInvalidMFACode.
	loginOutcomeMFAFailed LoginOutcome = "mfa_failed"
)

// BypassGrant waives the MFA step of one login. It is honored only when GrantedBy
// is an administrator and never lifts a device block.
type BypassGrant struct {
	GrantedBy string
	Reason    string
}

// LoginRequest is a login for a user whose password was already verified upstream.
type LoginRequest struct {
	UserID      string
	DeviceID    string
	Fingerprint *driftdomain.Fingerprint
	// MFACode is a TOTP or backup code; only checked when MFA is required.
	MFACode   string
	IP        string
	UserAgent string
	Bypass    *BypassGrant
}

// LoginResult is the outcome of Login. Session is set only when Outcome is granted.
type LoginResult struct {
	Outcome   LoginOutcome
	Session   *session.Issued
	NewDevice bool
	// Drift is nil for a new device.
	Drift                *driftdomain.Result
	MFAVerified          bool
	UsedBackupCode       bool
	RemainingBackupCodes int
	Review               bool
	Bypassed             bool
}

// Deps are the collaborators of an AuthService. Audit, Events and Metrics may be nil.
type Deps struct {
	MFA       *mfa.Engine
	Detector  *drift.Detector
	Sessions  *session.Manager
	Store     store.TxRunner
	DriftLogs driftrepo.DriftLogRepository
	Policy    engine.Evaluator
	Admins    rbac.AdminChecker
	Audit     audit.AuditLogger
	Events    telemetry.EventEmitter
	Metrics   *telemetry.Metrics
	// MFAForNewDevice requires MFA on a new device for users with MFA enabled.
	MFAForNewDevice bool
	Now             func() time.Time
}

// AuthService implements the caller-facing auth operations.
type AuthService struct {
	mfa             *mfa.Engine
	detector        *drift.Detector
	sessions        *session.Manager
	store           store.TxRunner
	driftLogs       driftrepo.DriftLogRepository
	policy          engine.Evaluator
	admins          rbac.AdminChecker
	audit           audit.AuditLogger
	events          telemetry.EventEmitter
	metrics         *telemetry.Metrics
	mfaForNewDevice bool
	now             func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(d Deps) *AuthService {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &AuthService{
		mfa:             d.MFA,
		detector:        d.Detector,
		sessions:        d.Sessions,
		store:           d.Store,
		driftLogs:       d.DriftLogs,
		policy:          d.Policy,
		admins:          d.Admins,
		audit:           d.Audit,
		events:          d.Events,
		metrics:         d.Metrics,
		mfaForNewDevice: d.MFAForNewDevice,
		now:             d.Now,
	}
}

// SetupMFA starts a TOTP enrollment for userID.
func (s *AuthService) SetupMFA(ctx context.Context, userID, accountName string) (*mfa.SetupResult, error) {
	res, err := s.mfa.Setup(ctx, userID, accountName)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, userID, userID, audit.ActionMFASetup, "mfa", nil)
	return res, nil
}

// ConfirmMFA enables MFA when code matches the pending secret.
func (s *AuthService) ConfirmMFA(ctx context.Context, userID, code string) error {
	ok, err := s.mfa.ConfirmSetup(ctx, userID, code)
	if err != nil {
		return err
	}
	if !ok {
		s.metrics.MFAVerification(ctx, "failure", "setup")
		return ErrInvalidMFACode
	}
	s.metrics.MFAVerification(ctx, "success", "setup")
	s.logAudit(ctx, userID, userID, audit.ActionMFAEnabled, "mfa", nil)
	return nil
}

// DisableMFA turns off MFA for userID. adminID must be an administrator.
func (s *AuthService) DisableMFA(ctx context.Context, adminID, userID string) error {
	if !s.isAdmin(ctx, adminID) {
		return ErrAdminRequired
	}
	if err := s.mfa.Disable(ctx, userID, adminID); err != nil {
		return err
	}
	s.logAudit(ctx, adminID, userID, audit.ActionMFADisabled, "mfa", nil)
	return nil
}

// MFAStatus returns the enrollment state of userID.
func (s *AuthService) MFAStatus(ctx context.Context, userID string) (*mfa.Status, error) {
	return s.mfa.Status(ctx, userID)
}

// Login runs the drift check and login policy for the device and issues a session
// when they, and MFA if required, allow it. The fingerprint read, drift record,
// baseline update and session creation are one unit of work per (user, device).
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.UserID == "" || req.DeviceID == "" || req.Fingerprint == nil {
		return nil, ErrInvalidLoginRequest
	}
	if req.Bypass != nil && !s.isAdmin(ctx, req.Bypass.GrantedBy) {
		s.logAudit(ctx, req.Bypass.GrantedBy, req.UserID, audit.ActionLoginBypass, "login", map[string]any{
			"device_id": req.DeviceID,
			"permitted": false,
		})
		return nil, ErrBypassNotPermitted
	}
	mfaEnabled, err := s.mfa.IsEnabled(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	res := &LoginResult{}
	var (
		mfaFailed bool
		mfaResult *mfa.AuthResult
	)
	err = s.store.InDeviceTx(ctx, req.UserID, req.DeviceID, func(repos store.Repos) error {
		*res = LoginResult{}
		mfaFailed, mfaResult = false, nil

		stored, err := repos.Fingerprints.Get(ctx, req.UserID, req.DeviceID)
		if err != nil {
			return err
		}
		in := engine.LoginInput{
			UserID:          req.UserID,
			NewDevice:       stored == nil,
			MFAEnabled:      mfaEnabled,
			MFAForNewDevice: s.mfaForNewDevice,
		}
		res.NewDevice = stored == nil
		if stored != nil {
			dr, err := s.detector.Analyze(&stored.Fingerprint, req.Fingerprint, req.UserID)
			if err != nil {
				return err
			}
			res.Drift = dr
			in.DriftStatus = string(dr.Status)
			in.DriftAction = string(dr.Action)
			in.Similarity = dr.Similarity
			in.DriftRequiresMFA = dr.RequiresMFA
			in.DriftBlocked = dr.Blocked
			in.DriftRequiresReview = dr.RequiresAdminReview
			if err := repos.DriftLogs.Create(ctx, &driftdomain.Record{
				ID:        uuid.New().String(),
				UserID:    req.UserID,
				DeviceID:  req.DeviceID,
				Result:    *dr,
				CreatedAt: s.now().UTC(),
			}); err != nil {
				return err
			}
		}

		decision, err := s.policy.EvaluateLogin(ctx, in)
		if err != nil {
			return err
		}
		// A drift block is final whatever the policy says.
		if in.DriftBlocked {
			decision.Deny = true
		}
		res.Review = decision.Review
		if decision.Deny {
			res.Outcome = LoginOutcomeDeviceBlocked
			return nil
		}

		if decision.MFARequired {
			switch {
			case req.Bypass != nil:
				res.Bypassed = true
			case !mfaEnabled:
				res.Outcome = LoginOutcomeMFAEnrollmentRequired
				return nil
			case strings.TrimSpace(req.MFACode) == "":
				res.Outcome = LoginOutcomeMFARequired
				return nil
			default:
				verifier := s.mfa
				if repos.Credentials != nil {
					verifier = verifier.WithRepository(repos.Credentials)
				}
				ar, err := verifier.Authenticate(ctx, req.UserID, req.MFACode)
				if err != nil {
					return err
				}
				mfaResult = ar
				if !ar.Success {
					// The drift record still commits.
					mfaFailed = true
					return nil
				}
				res.MFAVerified = true
				res.UsedBackupCode = ar.UsedBackupCode
				res.RemainingBackupCodes = ar.RemainingBackupCodes
			}
		}

		issued, err := s.sessions.WithRepository(repos.Sessions).CreateSession(ctx, session.CreateParams{
			UserID:      req.UserID,
			DeviceID:    req.DeviceID,
			IP:          req.IP,
			UserAgent:   req.UserAgent,
			MFAVerified: res.MFAVerified,
		})
		if err != nil {
			return err
		}
		if err := repos.Fingerprints.Save(ctx, req.UserID, req.DeviceID, req.Fingerprint); err != nil {
			return err
		}
		res.Session = issued
		res.Outcome = LoginOutcomeGranted
		return nil
	})
	if err != nil {
		return nil, err
	}
	if mfaResult != nil {
		s.recordMFA(ctx, req.UserID, mfaResult)
	}
	if mfaFailed {
		s.recordLogin(ctx, req, res, loginOutcomeMFAFailed)
		return nil, ErrInvalidMFACode
	}
	s.recordLogin(ctx, req, res, res.Outcome)
	return res, nil
}

// Refresh issues a new access token for a refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*session.Refreshed, error) {
	out, err := s.sessions.RefreshAccessToken(ctx, refreshToken)
	var reuse *session.ReuseError
	if errors.As(err, &reuse) {
		s.logAudit(ctx, reuse.UserID, reuse.UserID, audit.ActionRefreshTokenReuse, "session", map[string]string{"session_id": reuse.SessionID})
		ev := telemetry.NewEvent(telemetry.EventRefreshReuse, "auth_service", nil)
		ev.UserID, ev.SessionID = reuse.UserID, reuse.SessionID
		telemetry.EmitAsync(s.events, ctx, ev)
	}
	return out, err
}

// Logout terminates one of the caller's sessions.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string) error {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil || sess.UserID != userID {
		return ErrSessionNotFound
	}
	ok, err := s.sessions.TerminateSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionNotFound
	}
	s.logAudit(ctx, userID, userID, audit.ActionSessionTerminated, "session", map[string]string{"session_id": sessionID})
	return nil
}

// LogoutAll terminates every session of userID on behalf of actorID, who must be
// userID or an administrator.
func (s *AuthService) LogoutAll(ctx context.Context, actorID, userID string) (int64, error) {
	if actorID != userID && !s.isAdmin(ctx, actorID) {
		return 0, ErrAdminRequired
	}
	n, err := s.sessions.TerminateAllUserSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logAudit(ctx, actorID, userID, audit.ActionSessionsTerminatedAll, "session", map[string]int64{"terminated": n})
	return n, nil
}

// Validate checks an access token. See session.Manager.ValidateAccessToken.
func (s *AuthService) Validate(ctx context.Context, accessToken string) (*session.Validation, error) {
	return s.sessions.ValidateAccessToken(ctx, accessToken)
}

// ValidateAccessToken lets the service back the auth interceptor.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*session.Validation, error) {
	return s.Validate(ctx, accessToken)
}

// ListSessions returns the live sessions of userID, newest first.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return s.sessions.ListUserSessions(ctx, userID)
}

// DriftHistory returns the newest drift records of userID.
func (s *AuthService) DriftHistory(ctx context.Context, userID string, limit int) ([]*driftdomain.Record, error) {
	return s.driftLogs.ListByUser(ctx, userID, limit)
}

func (s *AuthService) isAdmin(ctx context.Context, userID string) bool {
	if s.admins == nil || userID == "" {
		return false
	}
	ok, err := s.admins.IsAdmin(ctx, userID)
	if err != nil {
		log.Printf("auth: admin check for %s failed: %v", userID, err)
		return false
	}
	return ok
}

func (s *AuthService) logAudit(ctx context.Context, actorID, subjectID, action, resource string, metadata any) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, actorID, subjectID, action, resource, metadata)
}

func (s *AuthService) recordMFA(ctx context.Context, userID string, ar *mfa.AuthResult) {
	method := "totp"
	if ar.UsedBackupCode {
		method = "backup_code"
	}
	result := "success"
	if !ar.Success {
		result = string(ar.Reason)
	}
	s.metrics.MFAVerification(ctx, result, method)
	if ar.UsedBackupCode {
		s.logAudit(ctx, userID, userID, audit.ActionMFABackupCodeUsed, "mfa", map[string]int{"remaining": ar.RemainingBackupCodes})
	}
	ev := telemetry.NewEvent(telemetry.EventMFAVerification, "auth_service", map[string]any{
		"result": result,
		"method": method,
	})
	ev.UserID = userID
	telemetry.EmitAsync(s.events, ctx, ev)
}

type loginEventMetadata struct {
	Outcome     LoginOutcome `json:"outcome"`
	NewDevice   bool         `json:"new_device"`
	DriftStatus string       `json:"drift_status,omitempty"`
	Similarity  float64      `json:"similarity,omitempty"`
	MFAVerified bool         `json:"mfa_verified"`
	Review      bool         `json:"review,omitempty"`
	Bypassed    bool         `json:"bypassed,omitempty"`
	IP          string       `json:"ip,omitempty"`
}

func (s *AuthService) recordLogin(ctx context.Context, req LoginRequest, res *LoginResult, outcome LoginOutcome) {
	meta := loginEventMetadata{
		Outcome:     outcome,
		NewDevice:   res.NewDevice,
		MFAVerified: res.MFAVerified,
		Review:      res.Review,
		Bypassed:    res.Bypassed,
		IP:          req.IP,
	}
	if res.Drift != nil {
		meta.DriftStatus = string(res.Drift.Status)
		meta.Similarity = res.Drift.Similarity
	}
	s.metrics.LoginOutcome(ctx, string(outcome), meta.DriftStatus)

	var sessionID string
	if res.Session != nil {
		sessionID = res.Session.SessionID
		if n := len(res.Session.Evicted); n > 0 {
			s.metrics.SessionsEvicted(ctx, n)
		}
	}
	if res.Drift != nil {
		ev := telemetry.NewEvent(telemetry.EventDriftAnalyzed, "auth_service", res.Drift)
		ev.UserID, ev.DeviceID = req.UserID, req.DeviceID
		telemetry.EmitAsync(s.events, ctx, ev)
	}
	ev := telemetry.NewEvent(telemetry.EventLogin, "auth_service", meta)
	ev.UserID, ev.DeviceID, ev.SessionID = req.UserID, req.DeviceID, sessionID
	telemetry.EmitAsync(s.events, ctx, ev)

	switch {
	case outcome == LoginOutcomeDeviceBlocked:
		log.Printf("auth: login blocked for user %s device %s (similarity %.2f)", req.UserID, req.DeviceID, meta.Similarity)
		s.logAudit(ctx, req.UserID, req.UserID, audit.ActionLoginBlocked, "login", meta)
	case outcome == LoginOutcomeGranted && res.Bypassed:
		log.Printf("auth: mfa bypassed for user %s by %s", req.UserID, req.Bypass.GrantedBy)
		s.logAudit(ctx, req.Bypass.GrantedBy, req.UserID, audit.ActionLoginBypass, "login", map[string]any{
			"device_id":  req.DeviceID,
			"session_id": sessionID,
			"reason":     req.Bypass.Reason,
			"permitted":  true,
		})
	case outcome == LoginOutcomeGranted:
		s.logAudit(ctx, req.UserID, req.UserID, audit.ActionLoginGranted, "login", meta)
	}
	if res.Review {
		log.Printf("auth: login of user %s device %s flagged for review (%s)", req.UserID, req.DeviceID, meta.DriftStatus)
	}
}
