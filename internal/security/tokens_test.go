package security

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"testing"
	"time"
)

func testClaims() SessionClaims {
	return SessionClaims{UserID: "u1", SessionID: "s1", DeviceID: "d1", IP: "10.0.0.1", MFAVerified: true}
}

func TestTokenProvider_IssueAndParseAccess(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	iat := time.Now().Truncate(time.Second)
	token, jti, exp, err := p.IssueAccess(testClaims(), iat)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" || jti == "" {
		t.Fatal("token or jti empty")
	}
	if !exp.Equal(iat.Add(15 * time.Minute)) {
		t.Errorf("expiresAt = %v, want iat+15m", exp)
	}

	c, err := p.Parse(token, UseAccess)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.UserID != "u1" || c.SessionID != "s1" || c.DeviceID != "d1" || c.IP != "10.0.0.1" || !c.MFAVerified {
		t.Errorf("claims mismatch: %+v", c)
	}
	if c.Version != ClaimsVersion || c.ID != jti || c.Subject != "u1" {
		t.Errorf("registered claims mismatch: ver=%d jti=%q sub=%q", c.Version, c.ID, c.Subject)
	}
	if !c.IssuedAt.Time.Equal(iat) || !c.ExpiresAt.Time.Equal(exp) {
		t.Errorf("iat/exp = %v/%v, want %v/%v", c.IssuedAt.Time, c.ExpiresAt.Time, iat, exp)
	}
}

func TestTokenProvider_ParseRejectsWrongUse(t *testing.T) {
	p, _ := NewTestTokenProvider()
	now := time.Now()
	refresh, _, err := p.IssueRefresh(testClaims(), now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := p.Parse(refresh, UseAccess); err != ErrInvalidToken {
		t.Errorf("refresh token parsed as access: want ErrInvalidToken, got %v", err)
	}
	if _, err := p.Parse(refresh, UseRefresh); err != nil {
		t.Errorf("Parse refresh: %v", err)
	}
}

func TestTokenProvider_ParseDoesNotCheckExpiry(t *testing.T) {
	p, _ := NewTestTokenProvider()
	old := time.Now().Add(-time.Hour)
	token, _, _, err := p.IssueAccess(testClaims(), old)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	c, err := p.Parse(token, UseAccess)
	if err != nil {
		t.Fatalf("Parse expired token: %v", err)
	}
	if !c.Expired(time.Now()) {
		t.Error("Expired = false for a token issued an hour ago")
	}
	if c.Expired(old.Add(time.Minute)) {
		t.Error("Expired = true one minute after issue")
	}
}

func TestTokenProvider_ParseInvalid(t *testing.T) {
	p, _ := NewTestTokenProvider()
	token, _, _, _ := p.IssueAccess(testClaims(), time.Now())

	other := NewTokenProvider(p.privateKey, p.publicKey, "other-issuer", "test-audience", time.Minute, time.Hour)
	foreign, _, _, _ := other.IssueAccess(testClaims(), time.Now())

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "invalid-token"},
		{"empty", ""},
		{"tampered", token[:len(token)-4] + "AAAA"},
		{"wrong issuer", foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Parse(tt.token, UseAccess); err != ErrInvalidToken {
				t.Errorf("Parse: want ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestTokenProvider_ECDSAAndEd25519(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	providers := map[string]*TokenProvider{
		"ES256": NewTokenProvider(ecKey, ecKey.Public(), "iss", "aud", time.Minute, time.Hour),
		"EdDSA": NewTokenProvider(edKey, edKey.Public(), "iss", "aud", time.Minute, time.Hour),
	}
	for alg, p := range providers {
		t.Run(alg, func(t *testing.T) {
			if got := KeyAlg(p.publicKey); got != alg {
				t.Errorf("KeyAlg = %q, want %q", got, alg)
			}
			token, _, _, err := p.IssueAccess(testClaims(), time.Now())
			if err != nil {
				t.Fatalf("IssueAccess: %v", err)
			}
			if _, err := p.Parse(token, UseAccess); err != nil {
				t.Errorf("Parse: %v", err)
			}
		})
	}
}

func TestTokenProvider_IssueAccessUntil(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	iat := time.Now().Truncate(time.Second)
	exp := iat.Add(42 * time.Second)
	token, _, err := p.IssueAccessUntil(testClaims(), iat, exp)
	if err != nil {
		t.Fatalf("IssueAccessUntil: %v", err)
	}
	c, err := p.Parse(token, UseAccess)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !c.ExpiresAt.Time.Equal(exp) {
		t.Errorf("exp = %v, want %v", c.ExpiresAt.Time, exp)
	}
	if _, _, err := p.IssueAccessUntil(testClaims(), iat, iat); !errors.Is(err, ErrInvalidExpiry) {
		t.Errorf("exp == iat: err = %v, want ErrInvalidExpiry", err)
	}
}
