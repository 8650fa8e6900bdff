package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func encodePEM(t *testing.T, typ string, der []byte) string {
	t.Helper()
	return string(pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der}))
}

func pkcs8(t *testing.T, key any) string {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	return encodePEM(t, "PRIVATE KEY", der)
}

func pkix(t *testing.T, key any) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		t.Fatal(err)
	}
	return encodePEM(t, "PUBLIC KEY", der)
}

func TestParseKeys_Algorithms(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	ecDER, err := x509.MarshalECPrivateKey(ecKey)
	if err != nil {
		t.Fatal(err)
	}
	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	rsaPriv, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatal(err)
	}
	rsaKey := rsaPriv.(*rsa.PrivateKey)

	tests := []struct {
		name    string
		private string
		public  string
		alg     string
	}{
		{"rsa pkcs8/pkix", testPrivateKeyPEM, testPublicKeyPEM, "RS256"},
		{"rsa pkcs1", encodePEM(t, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(rsaKey)),
			encodePEM(t, "RSA PUBLIC KEY", x509.MarshalPKCS1PublicKey(&rsaKey.PublicKey)), "RS256"},
		{"ec sec1", encodePEM(t, "EC PRIVATE KEY", ecDER), pkix(t, &ecKey.PublicKey), "ES256"},
		{"ec pkcs8", pkcs8(t, ecKey), pkix(t, &ecKey.PublicKey), "ES256"},
		{"ed25519", pkcs8(t, edPriv), pkix(t, edPub), "EdDSA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			priv, err := ParsePrivateKey(tt.private)
			if err != nil {
				t.Fatalf("ParsePrivateKey: %v", err)
			}
			pub, err := ParsePublicKey(tt.public)
			if err != nil {
				t.Fatalf("ParsePublicKey: %v", err)
			}
			if got := KeyAlg(pub); got != tt.alg {
				t.Errorf("KeyAlg = %q, want %q", got, tt.alg)
			}
			if !pub.(interface{ Equal(crypto.PublicKey) bool }).Equal(priv.Public()) {
				t.Error("public key does not match private key")
			}
		})
	}
}

func TestParseKeys_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"whitespace", "  \n\t "},
		{"not pem", "-----BEGIN garbage"},
		{"unknown block type", encodePEM(t, "CERTIFICATE REQUEST", []byte{1, 2, 3})},
		{"corrupt body", encodePEM(t, "PRIVATE KEY", []byte("not der"))},
		{"missing file", filepath.Join(t.TempDir(), "nope.pem")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePrivateKey(tt.in); err == nil {
				t.Error("ParsePrivateKey: expected error")
			}
			if _, err := ParsePublicKey(tt.in); err == nil {
				t.Error("ParsePublicKey: expected error")
			}
		})
	}
	if _, err := ParsePrivateKey(""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("empty key err = %v, want ErrInvalidKey", err)
	}
}

func TestLoadPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pub.pem")
	if err := os.WriteFile(path, []byte(testPublicKeyPEM), 0o600); err != nil {
		t.Fatal(err)
	}
	escaped := strings.ReplaceAll(testPublicKeyPEM, "\n", `\n`)

	for name, in := range map[string]string{"inline": testPublicKeyPEM, "escaped newlines": escaped, "file": path} {
		t.Run(name, func(t *testing.T) {
			b, err := LoadPEM(in)
			if err != nil {
				t.Fatalf("LoadPEM: %v", err)
			}
			if strings.Contains(string(b), `\n`) {
				t.Error("literal \\n left in PEM")
			}
			if _, err := ParsePublicKey(in); err != nil {
				t.Errorf("ParsePublicKey: %v", err)
			}
		})
	}
}

func TestKeyAlg_Unsupported(t *testing.T) {
	if got := KeyAlg("not a key"); got != "" {
		t.Errorf("KeyAlg = %q, want empty", got)
	}
}
