// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory store (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DBTimeout bounds every store call (e.g. "5s"); timeouts surface as retryable errors.
	DBTimeoutRaw string `mapstructure:"DB_TIMEOUT"`

	// JWTPrivateKey is the PEM private key (RSA, ECDSA P-256 or Ed25519) or a path to it.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the matching PEM public key or a path to it.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token and session lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// TokenHashKey keys the MAC over stored token hashes. Required in production.
	TokenHashKey string `mapstructure:"TOKEN_HASH_KEY"`
	// RotateRefreshTokens issues a new refresh token on every refresh and treats reuse of an old one as theft.
	RotateRefreshTokens bool `mapstructure:"ROTATE_REFRESH_TOKENS"`
	// MaxSessionsPerUser caps concurrent sessions; the oldest are evicted.
	MaxSessionsPerUser int `mapstructure:"MAX_SESSIONS_PER_USER"`
	// SessionCleanupInterval is how often expired sessions are swept (e.g. "5m").
	SessionCleanupIntervalRaw string `mapstructure:"SESSION_CLEANUP_INTERVAL"`

	// MFAIssuer is the issuer label in provisioning URIs.
	MFAIssuer string `mapstructure:"MFA_ISSUER"`
	// MFASecretKey, when set, seals TOTP secrets at rest.
	MFASecretKey string `mapstructure:"MFA_SECRET_KEY"`
	// MFASetupTTL is how long a pending enrollment can be confirmed (e.g. "10m").
	MFASetupTTLRaw string `mapstructure:"MFA_SETUP_TTL"`
	// BackupCodeBcryptCost is the bcrypt cost for backup code hashes (4–31).
	BackupCodeBcryptCost int `mapstructure:"BACKUP_CODE_BCRYPT_COST"`
	// MFAForNewDevice requires MFA, when enrolled, on a device with no stored fingerprint.
	MFAForNewDevice bool `mapstructure:"MFA_FOR_NEW_DEVICE"`

	// Drift band lower bounds, in percent.
	DriftNoDriftMin  float64 `mapstructure:"DRIFT_NO_DRIFT_MIN"`
	DriftMinorMin    float64 `mapstructure:"DRIFT_MINOR_MIN"`
	DriftModerateMin float64 `mapstructure:"DRIFT_MODERATE_MIN"`
	DriftMajorMin    float64 `mapstructure:"DRIFT_MAJOR_MIN"`

	// LoginPolicyFile optionally replaces the built-in Rego login policy.
	LoginPolicyFile string `mapstructure:"LOGIN_POLICY_FILE"`
	// AdminUserIDs is a comma-separated list of user ids holding the admin capability.
	AdminUserIDs string `mapstructure:"ADMIN_USER_IDS"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTel exporter; empty endpoint disables export.
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// KafkaBrokers is a comma-separated broker list; when set, security events go to Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// TelemetryKafkaTopic is the Kafka topic for security events.
	TelemetryKafkaTopic string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only.
	LokiURL      string `mapstructure:"LOKI_URL"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

var keys = map[string]any{
	"GRPC_ADDR":                   ":8080",
	"DATABASE_URL":                "",
	"DB_TIMEOUT":                  "5s",
	"JWT_PRIVATE_KEY":             "",
	"JWT_PUBLIC_KEY":              "",
	"JWT_ISSUER":                  "ztsession-auth",
	"JWT_AUDIENCE":                "ztsession-api",
	"JWT_ACCESS_TTL":              "15m",
	"JWT_REFRESH_TTL":             "168h",
	"TOKEN_HASH_KEY":              "",
	"ROTATE_REFRESH_TOKENS":       false,
	"MAX_SESSIONS_PER_USER":       5,
	"SESSION_CLEANUP_INTERVAL":    "5m",
	"MFA_ISSUER":                  "ZeroTrust",
	"MFA_SECRET_KEY":              "",
	"MFA_SETUP_TTL":               "10m",
	"BACKUP_CODE_BCRYPT_COST":     10,
	"MFA_FOR_NEW_DEVICE":          true,
	"DRIFT_NO_DRIFT_MIN":          95.0,
	"DRIFT_MINOR_MIN":             80.0,
	"DRIFT_MODERATE_MIN":          60.0,
	"DRIFT_MAJOR_MIN":             40.0,
	"LOGIN_POLICY_FILE":           "",
	"ADMIN_USER_IDS":              "",
	"APP_ENV":                     "",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_EXPORTER_OTLP_INSECURE": false,
	"OTEL_SERVICE_NAME":           "ztsession",
	"KAFKA_BROKERS":               "",
	"TELEMETRY_KAFKA_TOPIC":       "ztsession-events",
	"LOKI_URL":                    "",
	"KAFKA_GROUP_ID":              "ztsession-telemetry-worker",
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Every key has a default so that AutomaticEnv picks it up during Unmarshal.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	for k, def := range keys {
		v.SetDefault(k, def)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.AccessTTL() >= c.RefreshTTL() {
		return errors.New("config: JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL")
	}
	if c.MaxSessionsPerUser < 1 {
		return errors.New("config: MAX_SESSIONS_PER_USER must be at least 1")
	}
	if c.BackupCodeBcryptCost < 4 || c.BackupCodeBcryptCost > 31 {
		return errors.New("config: BACKUP_CODE_BCRYPT_COST must be between 4 and 31")
	}
	t := c.DriftThresholds()
	if !(100 >= t.NoDrift && t.NoDrift > t.Minor && t.Minor > t.Moderate && t.Moderate > t.Major && t.Major >= 0) {
		return errors.New("config: drift thresholds must be strictly descending within [0,100]")
	}
	if c.IsProduction() {
		if c.TokenHashKey == "" {
			return errors.New("config: TOKEN_HASH_KEY must be set when APP_ENV=production")
		}
		if c.JWTPrivateKey == "" || c.JWTPublicKey == "" {
			return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set when APP_ENV=production")
		}
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when APP_ENV=production")
		}
	}
	return nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 168*time.Hour)
}

func (c *Config) DBTimeout() time.Duration {
	return parseDuration(c.DBTimeoutRaw, 5*time.Second)
}

func (c *Config) SessionCleanupInterval() time.Duration {
	return parseDuration(c.SessionCleanupIntervalRaw, 5*time.Minute)
}

func (c *Config) MFASetupTTL() time.Duration {
	return parseDuration(c.MFASetupTTLRaw, 10*time.Minute)
}

// DriftThresholds holds the lower bound of each drift band in percent.
type DriftThresholds struct {
	NoDrift  float64
	Minor    float64
	Moderate float64
	Major    float64
}

func (c *Config) DriftThresholds() DriftThresholds {
	return DriftThresholds{
		NoDrift:  c.DriftNoDriftMin,
		Minor:    c.DriftMinorMin,
		Moderate: c.DriftModerateMin,
		Major:    c.DriftMajorMin,
	}
}

// AdminIDs returns the configured admin user ids.
func (c *Config) AdminIDs() []string {
	return splitList(c.AdminUserIDs)
}

// KafkaBrokersList returns Kafka broker addresses; empty means Kafka is disabled.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
