package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the service counters. A nil *Metrics records nothing.
type Metrics struct {
	loginOutcomes    metric.Int64Counter
	sessionsEvicted  metric.Int64Counter
	sessionsSwept    metric.Int64Counter
	mfaVerifications metric.Int64Counter
}

// NewMetrics registers the counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error
	if m.loginOutcomes, err = meter.Int64Counter("ztsession.login.outcomes",
		metric.WithDescription("Login attempts by outcome and drift status")); err != nil {
		return nil, err
	}
	if m.sessionsEvicted, err = meter.Int64Counter("ztsession.sessions.evicted",
		metric.WithDescription("Sessions evicted by the per-user cap")); err != nil {
		return nil, err
	}
	if m.sessionsSwept, err = meter.Int64Counter("ztsession.sessions.swept",
		metric.WithDescription("Expired sessions removed by cleanup")); err != nil {
		return nil, err
	}
	if m.mfaVerifications, err = meter.Int64Counter("ztsession.mfa.verifications",
		metric.WithDescription("MFA verifications by result and method")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) LoginOutcome(ctx context.Context, outcome, driftStatus string) {
	if m == nil {
		return
	}
	m.loginOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("drift_status", driftStatus),
	))
}

func (m *Metrics) SessionsEvicted(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsEvicted.Add(ctx, int64(n))
}

func (m *Metrics) SessionsSwept(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsSwept.Add(ctx, n)
}

// MFAVerification records one verification; method is "totp" or "backup_code".
func (m *Metrics) MFAVerification(ctx context.Context, result, method string) {
	if m == nil {
		return
	}
	m.mfaVerifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("method", method),
	))
}
