package audit

import "testing"

func TestParseFullMethod(t *testing.T) {
	tests := []struct {
		method   string
		action   string
		resource string
	}{
		{"/ztsession.auth.v1.AuthService/Login", "rpc_login", "auth"},
		{"/ztsession.auth.v1.AuthService/DriftHistory", "rpc_drift_history", "auth"},
		{"/ztsession.auth.v1.AuthService/LogoutAll", "rpc_logout_all", "auth"},
		{"/ztsession.auth.v1.AuthService/DisableMFA", "rpc_disable_mfa", "auth"},
		{"/grpc.health.v1.Health/Check", "rpc_check", "health"},
		{"/NoPackage/DoThing", "rpc_do_thing", "unknown"},
		{"garbage", "unknown", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			ar := ParseFullMethod(tt.method)
			if ar.Action != tt.action || ar.Resource != tt.resource {
				t.Errorf("ParseFullMethod(%q) = %+v, want {%s %s}", tt.method, ar, tt.action, tt.resource)
			}
		})
	}
}

func TestSnake(t *testing.T) {
	for in, want := range map[string]string{
		"Login":         "login",
		"SetupMFA":      "setup_mfa",
		"MFAStatus":     "mfa_status",
		"ValidateToken": "validate_token",
	} {
		if got := snake(in); got != want {
			t.Errorf("snake(%q) = %q, want %q", in, got, want)
		}
	}
}
