package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimsVersion is the current claims layout version.
const ClaimsVersion = 1

// TokenUse distinguishes access tokens from refresh tokens.
type TokenUse string

const (
	UseAccess  TokenUse = "access"
	UseRefresh TokenUse = "refresh"
)

var (
	// ErrInvalidToken is returned when a token is malformed, badly signed, or issued for another audience.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnsupportedKey is returned when the signing key is not RSA, ECDSA P-256, or Ed25519.
	ErrUnsupportedKey = errors.New("unsupported signing key")
	// ErrInvalidExpiry is returned when a token would expire at or before its issue time.
	ErrInvalidExpiry = errors.New("token expiry not after issue time")
)

// SessionClaims is the session-bound part of every token.
type SessionClaims struct {
	UserID      string
	SessionID   string
	DeviceID    string
	IP          string
	MFAVerified bool
}

// Claims is the flat claim set carried by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Version     int      `json:"ver"`
	UserID      string   `json:"userId"`
	SessionID   string   `json:"sessionId"`
	DeviceID    string   `json:"deviceId"`
	IP          string   `json:"ip"`
	MFAVerified bool     `json:"mfaVerified"`
	Use         TokenUse `json:"use"`
}

// Expired reports whether the token is past its exp at now. Tokens without exp never expire.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}

// TokenProvider signs and parses session tokens with RS256, ES256, or EdDSA.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with privateKey and verifies with publicKey.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (p *TokenProvider) AccessTTL() time.Duration  { return p.accessTTL }
func (p *TokenProvider) RefreshTTL() time.Duration { return p.refreshTTL }

// IssueAccess issues an access token with iat = issuedAt and exp = issuedAt + access TTL.
func (p *TokenProvider) IssueAccess(sc SessionClaims, issuedAt time.Time) (token, jti string, expiresAt time.Time, err error) {
	expiresAt = issuedAt.Add(p.accessTTL)
	token, jti, err = p.issue(sc, UseAccess, issuedAt, expiresAt)
	return token, jti, expiresAt, err
}

// IssueAccessUntil issues an access token expiring at expiresAt, which callers cap
// below the session expiry.
func (p *TokenProvider) IssueAccessUntil(sc SessionClaims, issuedAt, expiresAt time.Time) (token, jti string, err error) {
	if !expiresAt.After(issuedAt) {
		return "", "", ErrInvalidExpiry
	}
	return p.issue(sc, UseAccess, issuedAt, expiresAt)
}

// IssueRefresh issues a refresh token expiring at expiresAt, normally the session expiry.
func (p *TokenProvider) IssueRefresh(sc SessionClaims, issuedAt, expiresAt time.Time) (token, jti string, err error) {
	return p.issue(sc, UseRefresh, issuedAt, expiresAt)
}

func (p *TokenProvider) issue(sc SessionClaims, use TokenUse, issuedAt, expiresAt time.Time) (string, string, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", "", err
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   sc.UserID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt.UTC()),
			ExpiresAt: jwt.NewNumericDate(expiresAt.UTC()),
		},
		Version:     ClaimsVersion,
		UserID:      sc.UserID,
		SessionID:   sc.SessionID,
		DeviceID:    sc.DeviceID,
		IP:          sc.IP,
		MFAVerified: sc.MFAVerified,
		Use:         use,
	}
	token, err := p.sign(claims)
	return token, jti, err
}

func (p *TokenProvider) sign(claims jwt.Claims) (string, error) {
	method := signingMethod(p.privateKey.Public())
	if method == nil {
		return "", ErrUnsupportedKey
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// Parse verifies signature, issuer, audience, version and use, and returns the claims.
// Expiry is NOT checked here: callers check it with Claims.Expired once the session
// has been looked up, so that revoked sessions are reported as invalid rather than expired.
func (p *TokenProvider) Parse(tokenString string, use TokenUse) (*Claims, error) {
	method := signingMethod(p.publicKey)
	if method == nil {
		return nil, ErrUnsupportedKey
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	},
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != p.issuer || !hasAudience(claims.Audience, p.audience) {
		return nil, ErrInvalidToken
	}
	if claims.Version != ClaimsVersion || claims.Use != use || claims.SessionID == "" || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

func signingMethod(pub crypto.PublicKey) jwt.SigningMethod {
	switch pub.(type) {
	case *rsa.PublicKey:
		return jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		return jwt.SigningMethodES256
	case ed25519.PublicKey:
		return jwt.SigningMethodEdDSA
	default:
		return nil
	}
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
