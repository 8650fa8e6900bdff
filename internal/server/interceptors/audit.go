package interceptors

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"zero-trust-session-core/internal/audit"
)

// AuditUnary returns a unary server interceptor that records an audit entry after
// each authenticated RPC, including failed ones. skipMethods are never audited.
// Best-effort: logging failures do not fail the RPC.
func AuditUnary(logger audit.AuditLogger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if logger == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		userID, _ := GetUserID(ctx)
		if userID == "" {
			return resp, err
		}
		sessionID, _ := GetSessionID(ctx)
		ar := audit.ParseFullMethod(info.FullMethod)
		logger.LogEvent(ctx, userID, userID, ar.Action, ar.Resource, map[string]string{
			"session_id": sessionID,
			"status":     status.Code(err).String(),
		})
		return resp, err
	}
}

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or peer, or "unknown".
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				if i := strings.Index(s, ","); i > 0 {
					s = strings.TrimSpace(s[:i])
				}
				return s
			}
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}

// UserAgent returns the client user agent from gRPC metadata, or "".
func UserAgent(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get("user-agent"); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
