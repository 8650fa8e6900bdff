package interceptors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"zero-trust-session-core/internal/db"
	"zero-trust-session-core/internal/security"
	"zero-trust-session-core/internal/session"
)

type fakeValidator struct {
	results map[string]*session.Validation
	err     error
}

func (f *fakeValidator) ValidateAccessToken(ctx context.Context, token string) (*session.Validation, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.results[token]; ok {
		return v, nil
	}
	return &session.Validation{}, nil
}

func newFakeValidator() *fakeValidator {
	return &fakeValidator{results: map[string]*session.Validation{
		"good": {Valid: true, Claims: &security.Claims{UserID: "user-1", SessionID: "session-1", DeviceID: "device-1"}},
		"old":  {Expired: true, Claims: &security.Claims{UserID: "user-1", SessionID: "session-1"}},
	}}
}

func withBearer(token string) context.Context {
	if token == "" {
		return context.Background()
	}
	return metadata.NewIncomingContext(context.Background(), metadata.New(map[string]string{
		"authorization": "Bearer " + token,
	}))
}

func TestAuthUnary(t *testing.T) {
	const (
		protected = "/test.Service/Protected"
		public    = "/test.Service/Public"
	)
	tests := []struct {
		name     string
		method   string
		token    string
		err      error
		wantCode codes.Code
		wantMsg  string
		wantUser string
	}{
		{name: "valid token", method: protected, token: "good", wantCode: codes.OK, wantUser: "user-1"},
		{name: "missing token", method: protected, wantCode: codes.Unauthenticated, wantMsg: "missing or invalid authorization"},
		{name: "invalid token", method: protected, token: "forged", wantCode: codes.Unauthenticated, wantMsg: "missing or invalid authorization"},
		{name: "expired token", method: protected, token: "old", wantCode: codes.Unauthenticated, wantMsg: "access token expired"},
		{name: "store unavailable", method: protected, token: "good", err: fmt.Errorf("%w: timeout", db.ErrUnavailable), wantCode: codes.Unavailable},
		{name: "store failure", method: protected, token: "good", err: errors.New("boom"), wantCode: codes.Internal},
		{name: "public without token", method: public, wantCode: codes.OK},
		{name: "public with invalid token", method: public, token: "forged", wantCode: codes.OK},
		{name: "public with valid token", method: public, token: "good", wantCode: codes.OK, wantUser: "user-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newFakeValidator()
			v.err = tt.err
			interceptor := AuthUnary(v, map[string]bool{public: true})
			var gotUser string
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				gotUser, _ = GetUserID(ctx)
				return "ok", nil
			}
			_, err := interceptor(withBearer(tt.token), nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, handler)
			st, _ := status.FromError(err)
			if st.Code() != tt.wantCode {
				t.Fatalf("code = %v, want %v (%v)", st.Code(), tt.wantCode, err)
			}
			if tt.wantMsg != "" && st.Message() != tt.wantMsg {
				t.Errorf("message = %q, want %q", st.Message(), tt.wantMsg)
			}
			if gotUser != tt.wantUser {
				t.Errorf("user = %q, want %q", gotUser, tt.wantUser)
			}
		})
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer   abc  ", "abc"},
		{"Basic abc", ""},
		{"Bear", ""},
	}
	for _, tt := range tests {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.New(map[string]string{"authorization": tt.header}))
		if got := extractBearer(ctx); got != tt.want {
			t.Errorf("extractBearer(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
	if got := extractBearer(context.Background()); got != "" {
		t.Errorf("no metadata: %q", got)
	}
}
