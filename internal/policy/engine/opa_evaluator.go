package engine

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

const loginQuery = "data.ztsession.login"

//go:embed login.rego
var defaultRegoPolicy string

// OPAEvaluator evaluates the login policy with a prepared Rego query.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy, or the built-in login policy when policy is empty.
// The module must define package ztsession.login.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	q, err := rego.New(
		rego.Query(loginQuery),
		rego.Module("login.rego", policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile login policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// NewOPAEvaluatorFromFile is NewOPAEvaluator with the policy read from path. Empty path selects the built-in policy.
func NewOPAEvaluatorFromFile(ctx context.Context, path string) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read login policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b))
}

// HealthCheck evaluates the prepared policy against a benign input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.eval(ctx, LoginInput{DriftStatus: "NO_DRIFT", DriftAction: "ALLOW", Similarity: 100})
	return err
}

// EvaluateLogin evaluates the policy. On evaluation failure it logs and returns
// Fallback(in) with a nil error so logins keep the built-in protections.
func (e *OPAEvaluator) EvaluateLogin(ctx context.Context, in LoginInput) (LoginDecision, error) {
	d, err := e.eval(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return LoginDecision{}, ctx.Err()
		}
		log.Printf("policy: login evaluation failed for user %s: %v, using built-in rules", in.UserID, err)
		return Fallback(in), nil
	}
	// A custom policy may relax MFA but can never lift a drift block.
	d.Deny = d.Deny || in.DriftBlocked
	return d, nil
}

func (e *OPAEvaluator) eval(ctx context.Context, in LoginInput) (LoginDecision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return LoginDecision{}, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return LoginDecision{}, errors.New("login policy returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return LoginDecision{}, fmt.Errorf("login policy returned %T", rs[0].Expressions[0].Value)
	}
	return LoginDecision{
		Deny:        boolField(doc, "deny"),
		MFARequired: boolField(doc, "mfa_required"),
		Review:      boolField(doc, "review"),
	}, nil
}

func buildInput(in LoginInput) map[string]interface{} {
	return map[string]interface{}{
		"user": map[string]interface{}{
			"id":          in.UserID,
			"mfa_enabled": in.MFAEnabled,
		},
		"device": map[string]interface{}{
			"is_new": in.NewDevice,
		},
		"settings": map[string]interface{}{
			"mfa_for_new_device": in.MFAForNewDevice,
		},
		"drift": map[string]interface{}{
			"status":                in.DriftStatus,
			"action":                in.DriftAction,
			"similarity":            in.Similarity,
			"requires_mfa":          in.DriftRequiresMFA,
			"blocked":               in.DriftBlocked,
			"requires_admin_review": in.DriftRequiresReview,
		},
	}
}

func boolField(doc map[string]interface{}, key string) bool {
	v, _ := doc[key].(bool)
	return v
}
