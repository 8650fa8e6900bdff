package domain

import "time"

// Status is the drift band a similarity score falls in.
type Status string

const (
	StatusNoDrift       Status = "NO_DRIFT"
	StatusMinorDrift    Status = "MINOR_DRIFT"
	StatusModerateDrift Status = "MODERATE_DRIFT"
	StatusMajorDrift    Status = "MAJOR_DRIFT"
	StatusDeviceChanged Status = "DEVICE_CHANGED"
)

// Action is what the login flow must do for a status.
type Action string

const (
	ActionAllow               Action = "ALLOW"
	ActionAllowWithLog        Action = "ALLOW_WITH_LOG"
	ActionRequireMFA          Action = "REQUIRE_MFA"
	ActionRequireMFAAndReview Action = "REQUIRE_MFA_AND_REVIEW"
	ActionBlock               Action = "BLOCK"
)

// Severity grades a status for alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ComponentDiff is one compared component. Values are truncated for storage.
type ComponentDiff struct {
	Component string  `json:"component"`
	Old       string  `json:"old"`
	New       string  `json:"new"`
	Weight    float64 `json:"weight"`
	Matched   bool    `json:"matched"`
}

// Result is the outcome of comparing two fingerprints.
type Result struct {
	Similarity          float64         `json:"similarity"`
	Status              Status          `json:"status"`
	Action              Action          `json:"action"`
	Severity            Severity        `json:"severity"`
	RequiresMFA         bool            `json:"requiresMfa"`
	RequiresAdminReview bool            `json:"requiresAdminReview"`
	Blocked             bool            `json:"blocked"`
	Details             []ComponentDiff `json:"details"`
}

// Record is an immutable drift log entry (stored in device_drift_logs).
type Record struct {
	ID        string
	UserID    string
	DeviceID  string
	Result    Result
	CreatedAt time.Time
}
