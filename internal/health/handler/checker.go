// Package handler drives the standard gRPC health service from store and policy readiness.
package handler

import (
	"context"
	"fmt"
	"log"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the login policy can be evaluated (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

const checkTimeout = 2 * time.Second

// Checker reports readiness. A nil Pinger or PolicyChecker is skipped.
type Checker struct {
	pinger Pinger
	policy PolicyChecker
}

func NewChecker(pinger Pinger, policy PolicyChecker) *Checker {
	return &Checker{pinger: pinger, policy: policy}
}

// Check returns the first failing dependency.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}

// Run updates hs for services ("" is the server as a whole) every interval until
// ctx is done, then marks them NOT_SERVING.
func (c *Checker) Run(ctx context.Context, hs *health.Server, interval time.Duration, services ...string) error {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	services = append([]string{""}, services...)
	t := time.NewTicker(interval)
	defer t.Stop()
	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		st := healthpb.HealthCheckResponse_SERVING
		if err := c.Check(ctx); err != nil {
			if ctx.Err() == nil {
				log.Printf("health: not serving: %v", err)
			}
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if st != last {
			for _, s := range services {
				hs.SetServingStatus(s, st)
			}
			last = st
		}
		select {
		case <-ctx.Done():
			for _, s := range services {
				hs.SetServingStatus(s, healthpb.HealthCheckResponse_NOT_SERVING)
			}
			return nil
		case <-t.C:
		}
	}
}
