package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"zero-trust-session-core/internal/telemetry"
)

type grpcRequestMetadata struct {
	FullMethod string `json:"full_method"`
	StatusCode string `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
}

// TelemetryUnary returns a unary server interceptor that emits a grpc_request event
// after each RPC. Best-effort and async; a nil emitter disables it.
func TelemetryUnary(emitter telemetry.EventEmitter, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		event := telemetry.NewEvent(telemetry.EventGRPCRequest, "grpc_interceptor", grpcRequestMetadata{
			FullMethod: info.FullMethod,
			StatusCode: status.Code(err).String(),
			DurationMs: time.Since(start).Milliseconds(),
			ClientIP:   ClientIP(ctx),
		})
		event.UserID, _ = GetUserID(ctx)
		event.SessionID, _ = GetSessionID(ctx)
		event.DeviceID, _ = GetDeviceID(ctx)
		telemetry.EmitAsync(emitter, ctx, event)
		return resp, err
	}
}
