package interceptors

import "context"

type contextKey struct{ name string }

var (
	userIDKey    = contextKey{"user_id"}
	sessionIDKey = contextKey{"session_id"}
	deviceIDKey  = contextKey{"device_id"}
)

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, userID, sessionID, deviceID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	ctx = context.WithValue(ctx, deviceIDKey, deviceID)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}

// GetDeviceID returns the device_id from context and true if set; otherwise "", false.
func GetDeviceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(deviceIDKey).(string)
	return v, ok
}
