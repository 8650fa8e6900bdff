package interceptors

import (
	"context"
	"errors"
	"log"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"zero-trust-session-core/internal/db"
	"zero-trust-session-core/internal/session"
)

const bearerPrefix = "bearer "

// AccessValidator validates access tokens against live sessions.
type AccessValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*session.Validation, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer access
// token and puts the caller identity in the context. publicMethods do not require
// a token; a token presented to them is still validated and, when valid, used.
// Expired tokens are reported as "access token expired" so clients know to refresh.
func AuthUnary(validator AccessValidator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		token := extractBearer(ctx)
		public := publicMethods[info.FullMethod]

		if token == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		v, err := validator.ValidateAccessToken(ctx, token)
		if err != nil {
			if errors.Is(err, db.ErrUnavailable) {
				return nil, status.Error(codes.Unavailable, "session store unavailable")
			}
			log.Printf("auth: validate access token: %v", err)
			return nil, status.Error(codes.Internal, "internal error")
		}
		if !v.Valid {
			if public {
				return handler(ctx, req)
			}
			if v.Expired {
				return nil, status.Error(codes.Unauthenticated, "access token expired")
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		ctx = WithIdentity(ctx, v.Claims.UserID, v.Claims.SessionID, v.Claims.DeviceID)
		return handler(ctx, req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
