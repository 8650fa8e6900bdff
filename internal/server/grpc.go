// Package server assembles the gRPC server: interceptors, AuthService and health.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"zero-trust-session-core/internal/audit"
	identityhandler "zero-trust-session-core/internal/identity/handler"
	identityservice "zero-trust-session-core/internal/identity/service"
	"zero-trust-session-core/internal/platform/rbac"
	"zero-trust-session-core/internal/server/interceptors"
	"zero-trust-session-core/internal/telemetry"
)

// Deps holds service dependencies for the gRPC server.
type Deps struct {
	// Auth is the auth service. If nil, AuthService RPCs return Unimplemented.
	Auth *identityservice.AuthService
	// Admins resolves administrator callers for DisableMFA, bypass grants and cross-user queries.
	Admins rbac.AdminChecker
	// Audit records authenticated RPCs. If nil, no RPCs are audited.
	Audit audit.AuditLogger
	// Events receives a grpc_request event per RPC. If nil, none are emitted.
	Events telemetry.EventEmitter
	// Health is the standard health service. If nil, a new one is created.
	Health *health.Server
	// Tracing adds the otelgrpc stats handler.
	Tracing bool
}

// unaudited methods carry no caller identity or are too frequent to audit per call.
var unaudited = map[string]bool{
	identityhandler.MethodValidate:   true,
	healthpb.Health_Check_FullMethodName: true,
}

// NewServer returns a gRPC server with AuthService and health registered. The
// interceptor chain is auth, then audit, then telemetry.
func NewServer(deps Deps, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	var validator interceptors.AccessValidator
	if deps.Auth != nil {
		validator = deps.Auth
	} else {
		validator = noSessions{}
	}
	public := map[string]bool{healthpb.Health_Check_FullMethodName: true}
	for m := range identityhandler.PublicMethods {
		public[m] = true
	}
	chain := []grpc.UnaryServerInterceptor{
		interceptors.AuthUnary(validator, public),
		interceptors.AuditUnary(deps.Audit, unaudited),
		interceptors.TelemetryUnary(deps.Events, nil),
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(chain...))
	if deps.Tracing {
		opts = append(opts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	hs := deps.Health
	if hs == nil {
		hs = health.NewServer()
	}
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}

// RegisterServices registers AuthService with s.
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	identityhandler.NewAuthServer(deps.Auth, deps.Admins).Register(s)
}
