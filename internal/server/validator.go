package server

import (
	"context"

	"zero-trust-session-core/internal/session"
)

// noSessions rejects every token when no auth service is configured.
type noSessions struct{}

func (noSessions) ValidateAccessToken(context.Context, string) (*session.Validation, error) {
	return &session.Validation{}, nil
}
