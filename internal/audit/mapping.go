package audit

import (
	"strings"
	"unicode"
)

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// rpcActionPrefix keeps per-RPC entries apart from the domain actions the
// services record themselves (login_granted, mfa_disabled, ...).
const rpcActionPrefix = "rpc_"

// ParseFullMethod returns action and resource for a gRPC full method
// (e.g. /ztsession.auth.v1.AuthService/DriftHistory -> rpc_drift_history on "auth").
func ParseFullMethod(fullMethod string) ActionResource {
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	action := rpcActionPrefix + snake(fullMethod[slash+1:])
	service := fullMethod[:slash]
	dot := strings.LastIndex(service, ".")
	if dot < 0 {
		return ActionResource{Action: action, Resource: "unknown"}
	}
	return ActionResource{Action: action, Resource: serviceToResource(service[dot+1:])}
}

func serviceToResource(serviceName string) string {
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s[0:1]) + s[1:]
}

// snake converts a Go-style method name to snake_case, keeping acronyms together
// (DriftHistory -> drift_history, SetupMFA -> setup_mfa).
func snake(s string) string {
	r := []rune(s)
	var b strings.Builder
	for i, c := range r {
		if unicode.IsUpper(c) {
			prevLower := i > 0 && unicode.IsLower(r[i-1])
			nextLower := i > 0 && i+1 < len(r) && unicode.IsUpper(r[i-1]) && unicode.IsLower(r[i+1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(c))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
