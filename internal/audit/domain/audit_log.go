package domain

import (
	"encoding/json"
	"time"
)

// AuditLog is one audit event. ActorID performed Action; SubjectID is the user
// affected, which differs from ActorID for administrative actions.
type AuditLog struct {
	ID        string
	ActorID   string
	SubjectID string
	Action    string
	Resource  string
	IP        string
	Metadata  json.RawMessage
	CreatedAt time.Time
}
