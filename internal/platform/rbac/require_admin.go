// Package rbac resolves what an authenticated caller may do.
package rbac

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"zero-trust-session-core/internal/server/interceptors"
)

// AdminChecker reports whether a user holds the administrator role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// StaticAdmins is an AdminChecker backed by a fixed set of user ids, typically from config.
type StaticAdmins map[string]struct{}

// NewStaticAdminChecker returns a StaticAdmins holding ids. Blank ids are ignored.
func NewStaticAdminChecker(ids []string) StaticAdmins {
	s := make(StaticAdmins, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// IsAdmin implements AdminChecker.
func (s StaticAdmins) IsAdmin(_ context.Context, userID string) (bool, error) {
	_, ok := s[userID]
	return ok, nil
}

// RequireAdmin ensures the caller is authenticated and an administrator.
// Returns the caller's user id on success; returns a gRPC error (Unauthenticated,
// PermissionDenied or Internal) on failure.
func RequireAdmin(ctx context.Context, checker AdminChecker) (string, error) {
	userID, ok := interceptors.GetUserID(ctx)
	if !ok || userID == "" {
		return "", status.Error(codes.Unauthenticated, "user context required")
	}
	if checker == nil {
		return "", status.Error(codes.PermissionDenied, "administrator required")
	}
	admin, err := checker.IsAdmin(ctx, userID)
	if err != nil {
		return "", status.Error(codes.Internal, "failed to resolve role")
	}
	if !admin {
		return "", status.Error(codes.PermissionDenied, "administrator required")
	}
	return userID, nil
}
