// Package handler exposes the auth service over gRPC as ztsession.auth.v1.AuthService.
package handler

import (
	"context"
	"errors"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"zero-trust-session-core/internal/db"
	"zero-trust-session-core/internal/drift"
	driftdomain "zero-trust-session-core/internal/drift/domain"
	"zero-trust-session-core/internal/identity/service"
	"zero-trust-session-core/internal/mfa"
	"zero-trust-session-core/internal/platform/rbac"
	"zero-trust-session-core/internal/server/interceptors"
	"zero-trust-session-core/internal/session"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ztsession.auth.v1.AuthService"

// Full method names.
const (
	MethodSetupMFA     = "/" + ServiceName + "/SetupMFA"
	MethodConfirmMFA   = "/" + ServiceName + "/ConfirmMFA"
	MethodDisableMFA   = "/" + ServiceName + "/DisableMFA"
	MethodMFAStatus    = "/" + ServiceName + "/MFAStatus"
	MethodLogin        = "/" + ServiceName + "/Login"
	MethodRefresh      = "/" + ServiceName + "/Refresh"
	MethodLogout       = "/" + ServiceName + "/Logout"
	MethodLogoutAll    = "/" + ServiceName + "/LogoutAll"
	MethodValidate     = "/" + ServiceName + "/Validate"
	MethodListSessions = "/" + ServiceName + "/ListSessions"
	MethodDriftHistory = "/" + ServiceName + "/DriftHistory"
)

// PublicMethods do not require a bearer token. Login is called by the upstream
// that verified the password; Refresh and Validate carry their own token.
var PublicMethods = map[string]bool{
	MethodLogin:    true,
	MethodRefresh:  true,
	MethodValidate: true,
}

// AuthServer implements AuthService for MFA enrollment, login, token refresh and session management.
type AuthServer struct {
	auth   *service.AuthService
	admins rbac.AdminChecker
}

// NewAuthServer returns a new Auth gRPC server. If auth is nil, every RPC returns Unimplemented.
func NewAuthServer(auth *service.AuthService, admins rbac.AdminChecker) *AuthServer {
	return &AuthServer{auth: auth, admins: admins}
}

// Register registers the server with s.
func (s *AuthServer) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&ServiceDesc, s)
}

func (s *AuthServer) SetupMFA(ctx context.Context, req *SetupMFARequest) (*SetupMFAResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.auth.SetupMFA(ctx, userID, req.AccountName)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SetupMFAResponse{
		Secret:          res.Secret,
		ProvisioningURI: res.ProvisioningURI,
		QRCodePNG:       res.QRCodePNG,
		BackupCodes:     res.BackupCodes,
	}, nil
}

func (s *AuthServer) ConfirmMFA(ctx context.Context, req *ConfirmMFARequest) (*Empty, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.auth.ConfirmMFA(ctx, userID, req.Code); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

// DisableMFA turns off MFA for another user. Administrators only.
func (s *AuthServer) DisableMFA(ctx context.Context, req *DisableMFARequest) (*Empty, error) {
	if s.auth == nil {
		return nil, unimplemented()
	}
	adminID, err := rbac.RequireAdmin(ctx, s.admins)
	if err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "userId is required")
	}
	if err := s.auth.DisableMFA(ctx, adminID, req.UserID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *AuthServer) MFAStatus(ctx context.Context, _ *Empty) (*MFAStatusResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.auth.MFAStatus(ctx, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MFAStatusResponse{
		Enabled:              st.Enabled,
		Pending:              st.Pending,
		RemainingBackupCodes: st.RemainingBackupCodes,
		DisabledBy:           st.DisabledBy,
		DisabledAt:           st.DisabledAt,
	}, nil
}

// Login runs the drift-checked login. A blocked device is PermissionDenied; an MFA
// challenge is a successful response with outcome mfa_required.
func (s *AuthServer) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if s.auth == nil {
		return nil, unimplemented()
	}
	lr := service.LoginRequest{
		UserID:      req.UserID,
		DeviceID:    req.DeviceID,
		Fingerprint: req.Fingerprint,
		MFACode:     req.MFACode,
		IP:          interceptors.ClientIP(ctx),
		UserAgent:   interceptors.UserAgent(ctx),
	}
	if req.Fingerprint != nil && req.Fingerprint.UserAgent != "" {
		lr.UserAgent = req.Fingerprint.UserAgent
	}
	if req.BypassReason != "" {
		adminID, err := rbac.RequireAdmin(ctx, s.admins)
		if err != nil {
			return nil, err
		}
		lr.Bypass = &service.BypassGrant{GrantedBy: adminID, Reason: req.BypassReason}
	}
	res, err := s.auth.Login(ctx, lr)
	if err != nil {
		return nil, toStatus(err)
	}
	if res.Outcome == service.LoginOutcomeDeviceBlocked {
		return nil, status.Error(codes.PermissionDenied, "device blocked; administrator review required")
	}
	out := &LoginResponse{
		Outcome:              string(res.Outcome),
		MFAVerified:          res.MFAVerified,
		NewDevice:            res.NewDevice,
		Drift:                res.Drift,
		Review:               res.Review,
		RemainingBackupCodes: res.RemainingBackupCodes,
	}
	if res.Session != nil {
		out.SessionID = res.Session.SessionID
		out.AccessToken = res.Session.AccessToken
		out.RefreshToken = res.Session.RefreshToken
		out.AccessExpiresAt = &res.Session.AccessExpiresAt
		out.ExpiresAt = &res.Session.ExpiresAt
	}
	return out, nil
}

func (s *AuthServer) Refresh(ctx context.Context, req *RefreshRequest) (*RefreshResponse, error) {
	if s.auth == nil {
		return nil, unimplemented()
	}
	if req.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "refreshToken is required")
	}
	res, err := s.auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RefreshResponse{
		SessionID:        res.SessionID,
		AccessToken:      res.AccessToken,
		ExpiresInSeconds: int64(res.ExpiresIn.Seconds()),
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshToken:     res.RefreshToken,
	}, nil
}

func (s *AuthServer) Logout(ctx context.Context, req *LogoutRequest) (*Empty, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID, _ = interceptors.GetSessionID(ctx)
	}
	if err := s.auth.Logout(ctx, userID, sessionID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *AuthServer) LogoutAll(ctx context.Context, req *LogoutAllRequest) (*LogoutAllResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	target := req.UserID
	if target == "" {
		target = userID
	}
	n, err := s.auth.LogoutAll(ctx, userID, target)
	if err != nil {
		return nil, toStatus(err)
	}
	return &LogoutAllResponse{Terminated: n}, nil
}

func (s *AuthServer) Validate(ctx context.Context, req *ValidateRequest) (*ValidateResponse, error) {
	if s.auth == nil {
		return nil, unimplemented()
	}
	v, err := s.auth.Validate(ctx, req.AccessToken)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &ValidateResponse{Valid: v.Valid, Expired: v.Expired}
	if v.Valid && v.Claims != nil {
		out.UserID = v.Claims.UserID
		out.SessionID = v.Claims.SessionID
		out.DeviceID = v.Claims.DeviceID
		out.MFAVerified = v.Claims.MFAVerified
		if v.Claims.ExpiresAt != nil {
			exp := v.Claims.ExpiresAt.Time
			out.ExpiresAt = &exp
		}
	}
	return out, nil
}

func (s *AuthServer) ListSessions(ctx context.Context, _ *Empty) (*ListSessionsResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.auth.ListSessions(ctx, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	current, _ := interceptors.GetSessionID(ctx)
	out := &ListSessionsResponse{Sessions: make([]SessionInfo, 0, len(list))}
	for _, ss := range list {
		out.Sessions = append(out.Sessions, SessionInfo{
			SessionID:    ss.ID,
			DeviceID:     ss.DeviceID,
			IPAddress:    ss.IPAddress,
			UserAgent:    ss.UserAgent,
			MFAVerified:  ss.MFAVerified,
			CreatedAt:    ss.CreatedAt,
			LastActivity: ss.LastActivity,
			ExpiresAt:    ss.ExpiresAt,
			Current:      ss.ID == current,
		})
	}
	return out, nil
}

func (s *AuthServer) DriftHistory(ctx context.Context, req *DriftHistoryRequest) (*DriftHistoryResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	target := req.UserID
	if target != "" && target != userID {
		if _, err := rbac.RequireAdmin(ctx, s.admins); err != nil {
			return nil, err
		}
	} else {
		target = userID
	}
	records, err := s.auth.DriftHistory(ctx, target, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &DriftHistoryResponse{Records: make([]DriftRecord, 0, len(records))}
	for _, r := range records {
		out.Records = append(out.Records, DriftRecord{ID: r.ID, DeviceID: r.DeviceID, Result: r.Result, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

// caller returns the authenticated user id, or an error status.
func (s *AuthServer) caller(ctx context.Context) (string, error) {
	if s.auth == nil {
		return "", unimplemented()
	}
	userID, ok := interceptors.GetUserID(ctx)
	if !ok || userID == "" {
		return "", status.Error(codes.Unauthenticated, "user context required")
	}
	return userID, nil
}

func unimplemented() error {
	return status.Error(codes.Unimplemented, "auth service not configured")
}

// toStatus maps service errors to gRPC status errors. Unknown errors are logged and reported as Internal.
func toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidLoginRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, driftdomain.ErrCorruptFingerprint):
		return status.Error(codes.InvalidArgument, "invalid fingerprint")
	case errors.Is(err, service.ErrInvalidMFACode):
		return status.Error(codes.Unauthenticated, "invalid mfa code")
	case errors.Is(err, session.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, "refresh token expired")
	case errors.Is(err, session.ErrRefreshTokenReuse):
		return status.Error(codes.Unauthenticated, "refresh token reuse detected; session terminated")
	case errors.Is(err, session.ErrInvalidRefreshToken):
		return status.Error(codes.Unauthenticated, "invalid refresh token")
	case errors.Is(err, service.ErrBypassNotPermitted), errors.Is(err, service.ErrAdminRequired):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		return status.Error(codes.NotFound, "session not found")
	case errors.Is(err, mfa.ErrAlreadyEnabled):
		return status.Error(codes.AlreadyExists, "mfa already enabled")
	case errors.Is(err, mfa.ErrNoPendingSetup), errors.Is(err, mfa.ErrNotEnrolled):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, drift.ErrNoBaseline):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, db.ErrUnavailable):
		return status.Error(codes.Unavailable, "store unavailable; retry")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	}
	log.Printf("auth: %v", err)
	return status.Error(codes.Internal, "internal error")
}
