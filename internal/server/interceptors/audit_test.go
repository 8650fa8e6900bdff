package interceptors

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type auditCall struct {
	actor, subject, action, resource string
	meta                             any
}

type recordingAuditLogger struct {
	mu    sync.Mutex
	calls []auditCall
}

func (r *recordingAuditLogger) LogEvent(ctx context.Context, actorID, subjectID, action, resource string, metadata any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, auditCall{actorID, subjectID, action, resource, metadata})
}

func TestAuditUnary(t *testing.T) {
	const method = "/ztsession.auth.v1.AuthService/DriftHistory"
	logger := &recordingAuditLogger{}
	interceptor := AuditUnary(logger, map[string]bool{"/grpc.health.v1.Health/Check": true})
	info := &grpc.UnaryServerInfo{FullMethod: method}
	failing := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.PermissionDenied, "no")
	}

	// Unauthenticated calls are not audited.
	_, _ = interceptor(context.Background(), nil, info, failing)
	if len(logger.calls) != 0 {
		t.Fatalf("unauthenticated call audited")
	}

	ctx := WithIdentity(context.Background(), "user-1", "session-1", "device-1")
	_, err := interceptor(ctx, nil, info, failing)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("err = %v", err)
	}
	if len(logger.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(logger.calls))
	}
	c := logger.calls[0]
	if c.actor != "user-1" || c.subject != "user-1" || c.action != "rpc_drift_history" || c.resource != "auth" {
		t.Errorf("call = %+v", c)
	}
	meta := c.meta.(map[string]string)
	if meta["status"] != "PermissionDenied" || meta["session_id"] != "session-1" {
		t.Errorf("meta = %v", meta)
	}

	_, _ = interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, failing)
	if len(logger.calls) != 1 {
		t.Error("skipped method audited")
	}
}

func TestAuditUnary_NilLogger(t *testing.T) {
	interceptor := AuditUnary(nil, nil)
	want := errors.New("x")
	_, err := interceptor(WithIdentity(context.Background(), "u", "s", "d"), nil, &grpc.UnaryServerInfo{FullMethod: "/a.B/C"},
		func(ctx context.Context, req interface{}) (interface{}, error) { return nil, want })
	if !errors.Is(err, want) {
		t.Errorf("err = %v", err)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"forwarded", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", "203.0.113.1, 10.0.0.1")), "203.0.113.1"},
		{"real ip", metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-real-ip", "203.0.113.2")), "203.0.113.2"},
		{"peer", peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("198.51.100.3"), Port: 5000}}), "198.51.100.3"},
		{"unknown", context.Background(), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClientIP(tt.ctx); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserAgent(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("user-agent", "grpc-go/1.78"))
	if got := UserAgent(ctx); got != "grpc-go/1.78" {
		t.Errorf("UserAgent = %q", got)
	}
	if got := UserAgent(context.Background()); got != "" {
		t.Errorf("UserAgent = %q", got)
	}
}
