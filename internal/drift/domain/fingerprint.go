package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorruptFingerprint is returned when stored or presented fingerprint JSON cannot be decoded.
var ErrCorruptFingerprint = errors.New("corrupt fingerprint")

// Fingerprint is the attribute bag a client presents for one device.
type Fingerprint struct {
	UserAgent    string   `json:"userAgent"`
	Platform     string   `json:"platform"`
	ScreenWidth  int      `json:"screenWidth"`
	ScreenHeight int      `json:"screenHeight"`
	GPUVendor    string   `json:"gpuVendor"`
	GPURenderer  string   `json:"gpuRenderer"`
	CanvasHash   string   `json:"canvasHash"`
	Timezone     string   `json:"timezone"`
	Plugins      []string `json:"plugins"`
	Fonts        []string `json:"fonts"`
}

// ParseFingerprint decodes fingerprint JSON, wrapping failures in ErrCorruptFingerprint.
func ParseFingerprint(raw []byte) (*Fingerprint, error) {
	var fp Fingerprint
	if err := json.Unmarshal(raw, &fp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptFingerprint, err)
	}
	return &fp, nil
}

// StoredFingerprint is the last trusted fingerprint of a (user, device) pair.
type StoredFingerprint struct {
	UserID      string
	DeviceID    string
	Fingerprint Fingerprint
	// Previous is the fingerprint this one replaced, kept for audit.
	Previous  *Fingerprint
	UpdatedAt time.Time
}
