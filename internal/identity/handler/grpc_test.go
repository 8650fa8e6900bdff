package handler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"zero-trust-session-core/internal/db"
	"zero-trust-session-core/internal/identity/service"
	"zero-trust-session-core/internal/mfa"
	"zero-trust-session-core/internal/session"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{service.ErrInvalidLoginRequest, codes.InvalidArgument},
		{service.ErrInvalidMFACode, codes.Unauthenticated},
		{session.ErrInvalidRefreshToken, codes.Unauthenticated},
		{session.ErrRefreshTokenExpired, codes.Unauthenticated},
		{&session.ReuseError{SessionID: "s", UserID: "u"}, codes.Unauthenticated},
		{service.ErrBypassNotPermitted, codes.PermissionDenied},
		{service.ErrAdminRequired, codes.PermissionDenied},
		{service.ErrSessionNotFound, codes.NotFound},
		{mfa.ErrAlreadyEnabled, codes.AlreadyExists},
		{mfa.ErrNoPendingSetup, codes.FailedPrecondition},
		{fmt.Errorf("get session: %w", db.ErrUnavailable), codes.Unavailable},
		{mfa.ErrMalformedSecret, codes.Internal},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := status.Code(toStatus(tt.err)); got != tt.want {
				t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestAuthServer_NilService(t *testing.T) {
	srv := NewAuthServer(nil, nil)
	ctx := context.Background()
	if _, err := srv.Login(ctx, &LoginRequest{}); status.Code(err) != codes.Unimplemented {
		t.Errorf("Login err = %v", err)
	}
	if _, err := srv.MFAStatus(ctx, &Empty{}); status.Code(err) != codes.Unimplemented {
		t.Errorf("MFAStatus err = %v", err)
	}
}

func TestCodec(t *testing.T) {
	var c Codec
	if c.Name() != "json" {
		t.Errorf("Name = %q", c.Name())
	}
	b, err := c.Marshal(&RefreshRequest{RefreshToken: "r"})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"refreshToken":"r"}` {
		t.Errorf("Marshal = %s", b)
	}
	var out RefreshRequest
	if err := c.Unmarshal(b, &out); err != nil || out.RefreshToken != "r" {
		t.Errorf("Unmarshal = %+v, %v", out, err)
	}
}

func TestServiceDesc_Methods(t *testing.T) {
	seen := make(map[string]bool)
	for _, m := range ServiceDesc.Methods {
		seen["/"+ServiceName+"/"+m.MethodName] = true
	}
	for _, m := range []string{MethodSetupMFA, MethodConfirmMFA, MethodDisableMFA, MethodMFAStatus, MethodLogin,
		MethodRefresh, MethodLogout, MethodLogoutAll, MethodValidate, MethodListSessions, MethodDriftHistory} {
		if !seen[m] {
			t.Errorf("method %s missing from ServiceDesc", m)
		}
	}
	for m := range PublicMethods {
		if !seen[m] {
			t.Errorf("public method %s missing from ServiceDesc", m)
		}
	}
}
