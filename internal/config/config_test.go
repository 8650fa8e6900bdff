package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":8080" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8080")
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL = %v, want 168h", cfg.RefreshTTL())
	}
	if cfg.MaxSessionsPerUser != 5 {
		t.Errorf("MaxSessionsPerUser = %d, want 5", cfg.MaxSessionsPerUser)
	}
	if cfg.RotateRefreshTokens {
		t.Error("RotateRefreshTokens should default to false")
	}
	if !cfg.MFAForNewDevice {
		t.Error("MFAForNewDevice should default to true")
	}
	if cfg.DBTimeout() != 5*time.Second {
		t.Errorf("DBTimeout = %v, want 5s", cfg.DBTimeout())
	}
	if cfg.MFASetupTTL() != 10*time.Minute {
		t.Errorf("MFASetupTTL = %v, want 10m", cfg.MFASetupTTL())
	}
	want := DriftThresholds{NoDrift: 95, Minor: 80, Moderate: 60, Major: 40}
	if got := cfg.DriftThresholds(); got != want {
		t.Errorf("DriftThresholds = %+v, want %+v", got, want)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("GRPC_ADDR", ":9090")
	os.Setenv("JWT_ACCESS_TTL", "5m")
	os.Setenv("MAX_SESSIONS_PER_USER", "3")
	os.Setenv("ROTATE_REFRESH_TOKENS", "true")
	os.Setenv("DRIFT_MODERATE_MIN", "65")
	os.Setenv("ADMIN_USER_IDS", "admin-1, admin-2,,")
	os.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":9090" {
		t.Errorf("GRPCAddr = %q", cfg.GRPCAddr)
	}
	if cfg.AccessTTL() != 5*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL())
	}
	if cfg.MaxSessionsPerUser != 3 || !cfg.RotateRefreshTokens {
		t.Errorf("MaxSessionsPerUser=%d RotateRefreshTokens=%v", cfg.MaxSessionsPerUser, cfg.RotateRefreshTokens)
	}
	if cfg.DriftThresholds().Moderate != 65 {
		t.Errorf("Moderate threshold = %v, want 65", cfg.DriftThresholds().Moderate)
	}
	if ids := cfg.AdminIDs(); len(ids) != 2 || ids[0] != "admin-1" || ids[1] != "admin-2" {
		t.Errorf("AdminIDs = %v", ids)
	}
	if b := cfg.KafkaBrokersList(); len(b) != 2 {
		t.Errorf("KafkaBrokersList = %v", b)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"access not shorter than refresh", map[string]string{"JWT_ACCESS_TTL": "2h", "JWT_REFRESH_TTL": "1h"}},
		{"zero session cap", map[string]string{"MAX_SESSIONS_PER_USER": "0"}},
		{"bcrypt cost too low", map[string]string{"BACKUP_CODE_BCRYPT_COST": "3"}},
		{"thresholds not descending", map[string]string{"DRIFT_MINOR_MIN": "50"}},
		{"threshold above 100", map[string]string{"DRIFT_NO_DRIFT_MIN": "101"}},
		{"production without hash key", map[string]string{"APP_ENV": "production", "JWT_PRIVATE_KEY": "k", "JWT_PUBLIC_KEY": "k", "DATABASE_URL": "postgres://x"}},
		{"production without database", map[string]string{"APP_ENV": "production", "JWT_PRIVATE_KEY": "k", "JWT_PUBLIC_KEY": "k", "TOKEN_HASH_KEY": "h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load: expected validation error")
			}
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	c := &Config{JWTAccessTTL: "bogus", JWTRefreshTTL: "-1h", DBTimeoutRaw: ""}
	if c.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL fallback = %v", c.AccessTTL())
	}
	if c.RefreshTTL() != 168*time.Hour {
		t.Errorf("RefreshTTL fallback = %v", c.RefreshTTL())
	}
	if c.DBTimeout() != 5*time.Second {
		t.Errorf("DBTimeout fallback = %v", c.DBTimeout())
	}
	if c.SessionCleanupInterval() != 5*time.Minute {
		t.Errorf("SessionCleanupInterval fallback = %v", c.SessionCleanupInterval())
	}
}

func TestKafkaBrokersList_Nil(t *testing.T) {
	var c *Config
	if c.KafkaBrokersList() != nil {
		t.Error("nil config should return nil broker list")
	}
}
