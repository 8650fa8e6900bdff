// Package engine decides login outcomes from drift analysis and MFA enrollment using OPA Rego.
package engine

import "context"

// LoginInput is the policy input for one login attempt.
type LoginInput struct {
	UserID string
	// NewDevice is true when no fingerprint is stored for the (user, device) pair.
	NewDevice bool
	// MFAEnabled reports whether the user has confirmed MFA.
	MFAEnabled bool
	// MFAForNewDevice requires MFA on new devices for enrolled users.
	MFAForNewDevice bool

	DriftStatus         string
	DriftAction         string
	Similarity          float64
	DriftRequiresMFA    bool
	DriftBlocked        bool
	DriftRequiresReview bool
}

// LoginDecision is the policy output.
type LoginDecision struct {
	Deny        bool
	MFARequired bool
	// Review flags the attempt for an administrator; it never blocks on its own.
	Review bool
}

// Evaluator evaluates the login policy.
type Evaluator interface {
	EvaluateLogin(ctx context.Context, in LoginInput) (LoginDecision, error)
}

// Fallback applies the built-in rules without OPA. It is used when policy
// evaluation fails and never relaxes a drift block or MFA requirement.
func Fallback(in LoginInput) LoginDecision {
	return LoginDecision{
		Deny:        in.DriftBlocked,
		MFARequired: in.DriftRequiresMFA || (in.NewDevice && in.MFAEnabled && in.MFAForNewDevice),
		Review:      in.DriftRequiresReview,
	}
}
