package interceptors

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"zero-trust-session-core/internal/telemetry"
)

type chanEmitter chan *telemetry.Event

func (c chanEmitter) Emit(ctx context.Context, e *telemetry.Event) error {
	c <- e
	return nil
}

func TestTelemetryUnary(t *testing.T) {
	events := make(chanEmitter, 2)
	interceptor := TelemetryUnary(events, map[string]bool{"/skip.S/M": true})
	ctx := WithIdentity(context.Background(), "user-1", "session-1", "device-1")
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "nope")
	}

	_, _ = interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/ztsession.auth.v1.AuthService/Logout"}, handler)
	var e *telemetry.Event
	select {
	case e = <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("no event emitted")
	}
	if e.Type != telemetry.EventGRPCRequest || e.UserID != "user-1" || e.SessionID != "session-1" || e.DeviceID != "device-1" {
		t.Errorf("event = %+v", e)
	}
	var meta grpcRequestMetadata
	if err := json.Unmarshal(e.Metadata, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.StatusCode != "NotFound" || meta.FullMethod != "/ztsession.auth.v1.AuthService/Logout" {
		t.Errorf("meta = %+v", meta)
	}

	_, _ = interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/skip.S/M"}, handler)
	select {
	case e := <-events:
		t.Errorf("skipped method emitted %+v", e)
	case <-time.After(50 * time.Millisecond):
	}

	// nil emitter passes through.
	if _, err := TelemetryUnary(nil, nil)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/a.B/C"}, handler); status.Code(err) != codes.NotFound {
		t.Errorf("err = %v", err)
	}
}
