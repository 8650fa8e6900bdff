// Package audit records security-relevant actions to the audit_logs table.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"zero-trust-session-core/internal/audit/domain"
	auditrepo "zero-trust-session-core/internal/audit/repository"
)

// Actions.
const (
	ActionMFASetup              = "mfa_setup"
	ActionMFAEnabled            = "mfa_enabled"
	ActionMFADisabled           = "mfa_disabled"
	ActionMFABackupCodeUsed     = "mfa_backup_code_used"
	ActionLoginGranted          = "login_granted"
	ActionLoginBlocked          = "login_blocked"
	ActionLoginBypass           = "login_bypass"
	ActionSessionTerminated     = "session_terminated"
	ActionSessionsTerminatedAll = "sessions_terminated_all"
	ActionRefreshTokenReuse     = "refresh_token_reuse"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event. Best-effort: failures are logged and
// do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, actorID, subjectID, action, resource string, metadata any)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	now         func() time.Time
}

// NewLogger returns a Logger persisting to repo. ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, now: time.Now}
}

// LogEvent writes one entry. metadata is marshalled to JSON; nil means none.
func (l *Logger) LogEvent(ctx context.Context, actorID, subjectID, action, resource string, metadata any) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		SubjectID: subjectID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		CreatedAt: l.now().UTC(),
	}
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			log.Printf("audit: dropping metadata for %s: %v", action, err)
		} else {
			entry.Metadata = b
		}
	}
	// The request may already be cancelled (e.g. client hung up after a block).
	if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}
