package mfa

import (
	"bytes"
	"crypto/subtle"
	"image/png"
	"io"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the TOTP time step.
	Period = 30 * time.Second
	// Skew is how many steps either side of the current one are accepted.
	Skew = 1

	secretSize = 20 // 160 bits
	qrSize     = 256
)

var validateOpts = totp.ValidateOpts{
	Period:    uint(Period / time.Second),
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type totpKey struct {
	secret string
	uri    string
	qrPNG  []byte
}

func generateKey(issuer, account string, rand io.Reader) (*totpKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      validateOpts.Period,
		SecretSize:  secretSize,
		Digits:      validateOpts.Digits,
		Algorithm:   validateOpts.Algorithm,
		Rand:        rand,
	})
	if err != nil {
		return nil, err
	}
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return &totpKey{secret: key.Secret(), uri: key.URL(), qrPNG: buf.Bytes()}, nil
}

// Step returns the TOTP time step containing t.
func Step(t time.Time) int64 {
	return t.Unix() / int64(Period/time.Second)
}

// GenerateCode returns the code for secret at t. Used by tests and the admin CLI.
func GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, validateOpts)
}

// verifyTOTP checks code against every step in the skew window and returns the
// matching step. All candidates are computed and compared in constant time.
func verifyTOTP(secret, code string, now time.Time) (int64, bool, error) {
	var (
		matched int64
		found   bool
	)
	for i := -Skew; i <= Skew; i++ {
		t := now.Add(time.Duration(i) * Period)
		want, err := totp.GenerateCodeCustom(secret, t, validateOpts)
		if err != nil {
			return 0, false, ErrMalformedSecret
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 && !found {
			matched, found = Step(t), true
		}
	}
	return matched, found, nil
}
