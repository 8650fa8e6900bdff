package handler

import (
	"context"

	"google.golang.org/grpc"
)

// AuthServiceServer is the server API of ztsession.auth.v1.AuthService.
type AuthServiceServer interface {
	SetupMFA(context.Context, *SetupMFARequest) (*SetupMFAResponse, error)
	ConfirmMFA(context.Context, *ConfirmMFARequest) (*Empty, error)
	DisableMFA(context.Context, *DisableMFARequest) (*Empty, error)
	MFAStatus(context.Context, *Empty) (*MFAStatusResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Refresh(context.Context, *RefreshRequest) (*RefreshResponse, error)
	Logout(context.Context, *LogoutRequest) (*Empty, error)
	LogoutAll(context.Context, *LogoutAllRequest) (*LogoutAllResponse, error)
	Validate(context.Context, *ValidateRequest) (*ValidateResponse, error)
	ListSessions(context.Context, *Empty) (*ListSessionsResponse, error)
	DriftHistory(context.Context, *DriftHistoryRequest) (*DriftHistoryResponse, error)
}

// ServiceDesc describes AuthService for grpc.ServiceRegistrar. Messages use Codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SetupMFA", AuthServiceServer.SetupMFA),
		unary("ConfirmMFA", AuthServiceServer.ConfirmMFA),
		unary("DisableMFA", AuthServiceServer.DisableMFA),
		unary("MFAStatus", AuthServiceServer.MFAStatus),
		unary("Login", AuthServiceServer.Login),
		unary("Refresh", AuthServiceServer.Refresh),
		unary("Logout", AuthServiceServer.Logout),
		unary("LogoutAll", AuthServiceServer.LogoutAll),
		unary("Validate", AuthServiceServer.Validate),
		unary("ListSessions", AuthServiceServer.ListSessions),
		unary("DriftHistory", AuthServiceServer.DriftHistory),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ztsession/auth/v1/auth.json",
}

func unary[Req, Resp any](name string, call func(AuthServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AuthServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AuthServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Client is a minimal AuthService client using Codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Invoke calls method with req and decodes the reply into resp.
func (c *Client) Invoke(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, req, resp, opts...)
}

func (c *Client) Login(ctx context.Context, req *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	out := new(LoginResponse)
	if err := c.Invoke(ctx, MethodLogin, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Refresh(ctx context.Context, req *RefreshRequest, opts ...grpc.CallOption) (*RefreshResponse, error) {
	out := new(RefreshResponse)
	if err := c.Invoke(ctx, MethodRefresh, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Validate(ctx context.Context, req *ValidateRequest, opts ...grpc.CallOption) (*ValidateResponse, error) {
	out := new(ValidateResponse)
	if err := c.Invoke(ctx, MethodValidate, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
