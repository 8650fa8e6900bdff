// Package telemetry carries security events (logins, drift analyses, MFA checks,
// RPCs) to an OTel log pipeline or Kafka, best-effort.
package telemetry

import (
	"context"
	"encoding/json"
	"time"
)

// Event types.
const (
	EventLogin           = "login"
	EventDriftAnalyzed   = "drift_analyzed"
	EventMFAVerification = "mfa_verification"
	EventRefreshReuse    = "refresh_token_reuse"
	EventGRPCRequest     = "grpc_request"
)

// Event is one security event. Metadata is a JSON object specific to Type.
type Event struct {
	Type      string          `json:"eventType"`
	Source    string          `json:"source,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	DeviceID  string          `json:"deviceId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewEvent returns an event of typ with metadata marshalled from meta. A meta that
// cannot be marshalled is dropped.
func NewEvent(typ, source string, meta any) *Event {
	e := &Event{Type: typ, Source: source, CreatedAt: time.Now().UTC()}
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			e.Metadata = b
		}
	}
	return e
}

// EventEmitter emits events. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
