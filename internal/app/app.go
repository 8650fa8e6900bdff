// Package app builds the auth-session core from configuration: stores, token
// keys, MFA engine, drift detector, login policy and the auth service.
package app

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/metric"

	"zero-trust-session-core/internal/audit"
	auditrepo "zero-trust-session-core/internal/audit/repository"
	"zero-trust-session-core/internal/config"
	"zero-trust-session-core/internal/db"
	"zero-trust-session-core/internal/drift"
	driftrepo "zero-trust-session-core/internal/drift/repository"
	"zero-trust-session-core/internal/identity/service"
	"zero-trust-session-core/internal/mfa"
	"zero-trust-session-core/internal/platform/rbac"
	"zero-trust-session-core/internal/policy/engine"
	"zero-trust-session-core/internal/security"
	"zero-trust-session-core/internal/server/interceptors"
	"zero-trust-session-core/internal/session"
	"zero-trust-session-core/internal/store"
	"zero-trust-session-core/internal/telemetry"
)

// Options are the optional collaborators of an App.
type Options struct {
	// Events receives security events. May be nil.
	Events telemetry.EventEmitter
	// Meter records metrics. May be nil.
	Meter metric.Meter
}

// App holds the assembled core.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Auth      *service.AuthService
	Sessions  *session.Manager
	MFA       *mfa.Engine
	Policy    *engine.OPAEvaluator
	Admins    rbac.StaticAdmins
	AuditRepo auditrepo.Repository
	Audit     *audit.Logger
	DriftLogs driftrepo.DriftLogRepository
	Metrics   *telemetry.Metrics
}

// New assembles the core. Without DATABASE_URL every store is in memory (development only).
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Admins: rbac.NewStaticAdminChecker(cfg.AdminIDs())}

	tokens, err := tokenProvider(cfg)
	if err != nil {
		return nil, err
	}
	hashKey := []byte(cfg.TokenHashKey)
	if len(hashKey) == 0 {
		log.Println("app: TOKEN_HASH_KEY not set; using an ephemeral key (sessions will not survive a restart)")
		hashKey = make([]byte, 32)
		if _, err := rand.Read(hashKey); err != nil {
			return nil, err
		}
	}
	hasher, err := security.NewTokenHasher(hashKey)
	if err != nil {
		return nil, err
	}
	var sealer security.Sealer
	if cfg.MFASecretKey != "" {
		if sealer, err = security.NewAEADSealer([]byte(cfg.MFASecretKey)); err != nil {
			return nil, fmt.Errorf("mfa secret key: %w", err)
		}
	}

	if cfg.LoginPolicyFile != "" {
		a.Policy, err = engine.NewOPAEvaluatorFromFile(ctx, cfg.LoginPolicyFile)
	} else {
		a.Policy, err = engine.NewOPAEvaluator(ctx, "")
	}
	if err != nil {
		return nil, fmt.Errorf("login policy: %w", err)
	}

	if opts.Meter != nil {
		if a.Metrics, err = telemetry.NewMetrics(opts.Meter); err != nil {
			return nil, err
		}
	}

	var (
		runner store.TxRunner
		repos  store.Repos
	)
	if cfg.DatabaseURL != "" {
		a.DB, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		pg := store.NewPostgresTxRunner(a.DB, cfg.DBTimeout())
		runner, repos = pg, pg.Repos()
		a.AuditRepo = auditrepo.NewPostgresRepository(a.DB, cfg.DBTimeout())
	} else {
		if cfg.IsProduction() {
			return nil, errors.New("app: DATABASE_URL is required in production")
		}
		log.Println("app: DATABASE_URL not set; using in-memory stores")
		mem := store.NewMemoryTxRunner()
		runner, repos = mem, mem.Repos()
		a.AuditRepo = auditrepo.NewMemoryRepository()
	}
	a.DriftLogs = repos.DriftLogs
	a.Audit = audit.NewLogger(a.AuditRepo, interceptors.ClientIP)

	a.Sessions = session.NewManager(repos.Sessions, tokens, hasher, session.Options{
		MaxSessionsPerUser:  cfg.MaxSessionsPerUser,
		RotateRefreshTokens: cfg.RotateRefreshTokens,
	})
	a.MFA = mfa.NewEngine(repos.Credentials, security.NewHasher(cfg.BackupCodeBcryptCost), sealer, mfa.Options{
		Issuer:   cfg.MFAIssuer,
		SetupTTL: cfg.MFASetupTTL(),
	})
	t := cfg.DriftThresholds()
	a.Auth = service.NewAuthService(service.Deps{
		MFA:             a.MFA,
		Detector:        drift.NewDetector(drift.Thresholds{NoDrift: t.NoDrift, Minor: t.Minor, Moderate: t.Moderate, Major: t.Major}),
		Sessions:        a.Sessions,
		Store:           runner,
		DriftLogs:       repos.DriftLogs,
		Policy:          a.Policy,
		Admins:          a.Admins,
		Audit:           a.Audit,
		Events:          opts.Events,
		Metrics:         a.Metrics,
		MFAForNewDevice: cfg.MFAForNewDevice,
	})
	return a, nil
}

// Close releases the database pool.
func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

func tokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	var (
		priv crypto.Signer
		pub  crypto.PublicKey
		err  error
	)
	if cfg.JWTPrivateKey != "" && cfg.JWTPublicKey != "" {
		if priv, err = security.ParsePrivateKey(cfg.JWTPrivateKey); err != nil {
			return nil, fmt.Errorf("JWT_PRIVATE_KEY: %w", err)
		}
		if pub, err = security.ParsePublicKey(cfg.JWTPublicKey); err != nil {
			return nil, fmt.Errorf("JWT_PUBLIC_KEY: %w", err)
		}
		if security.KeyAlg(pub) == "" {
			return nil, fmt.Errorf("JWT_PUBLIC_KEY: %w", security.ErrInvalidKey)
		}
	} else {
		log.Println("app: JWT keys not set; signing with an ephemeral Ed25519 key")
		epub, epriv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		priv, pub = epriv, epub
	}
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL()), nil
}
