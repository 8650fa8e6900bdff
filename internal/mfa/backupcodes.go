package mfa

import (
	"encoding/hex"
	"io"
	"strings"
)

const (
	// BackupCodeCount is how many backup codes a setup issues.
	BackupCodeCount = 10
	backupCodeBytes = 4
)

// generateBackupCodes returns n distinct 8-character lowercase hex codes.
func generateBackupCodes(rand io.Reader, n int) ([]string, error) {
	seen := make(map[string]struct{}, n)
	codes := make([]string, 0, n)
	b := make([]byte, backupCodeBytes)
	for len(codes) < n {
		if _, err := io.ReadFull(rand, b); err != nil {
			return nil, err
		}
		c := hex.EncodeToString(b)
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
	}
	return codes, nil
}

// normalizeCode strips whitespace and dashes and lowercases, so "A1B2-C3D4" and "a1b2c3d4" match.
func normalizeCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '-' || r == ' ' || r == '\t':
			return -1
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return r
	}, strings.TrimSpace(code))
}

func isTOTPShape(code string) bool {
	if len(code) != int(validateOpts.Digits) {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func isBackupShape(code string) bool {
	if len(code) != backupCodeBytes*2 {
		return false
	}
	_, err := hex.DecodeString(code)
	return err == nil
}
