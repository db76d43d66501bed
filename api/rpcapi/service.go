package rpcapi

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName is the gRPC service path segment; there is no .proto file
// behind it (see codec.go), but the string still has to match between
// client and server the same way a generated service descriptor would.
const serviceName = "rpcapi.TenantWorker"

// TenantWorkerServer is implemented by a tenant worker process. The
// gateway's RpcChannelPool calls it through TenantWorkerClient.
type TenantWorkerServer interface {
	Handshake(context.Context, *HandshakeRequest) (*HandshakeResponse, error)
	Execute(context.Context, *CommandRequest) (*CommandResponse, error)
	HealthCheck(context.Context, *HealthRequest) (*HealthResponse, error)
}

// UnimplementedTenantWorkerServer can be embedded in a server
// implementation to satisfy TenantWorkerServer for methods that have
// not been implemented yet, matching the forward-compatibility idiom
// of generated gRPC service code.
type UnimplementedTenantWorkerServer struct{}

func (UnimplementedTenantWorkerServer) Handshake(context.Context, *HandshakeRequest) (*HandshakeResponse, error) {
	return nil, grpcUnimplemented("Handshake")
}

func (UnimplementedTenantWorkerServer) Execute(context.Context, *CommandRequest) (*CommandResponse, error) {
	return nil, grpcUnimplemented("Execute")
}

func (UnimplementedTenantWorkerServer) HealthCheck(context.Context, *HealthRequest) (*HealthResponse, error) {
	return nil, grpcUnimplemented("HealthCheck")
}

// RegisterTenantWorkerServer registers srv against a grpc.Server (or
// anything satisfying grpc.ServiceRegistrar), the same way a
// protoc-gen-go-grpc generated RegisterXxxServer function would.
func RegisterTenantWorkerServer(s grpc.ServiceRegistrar, srv TenantWorkerServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TenantWorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Handshake", Handler: handshakeHandler},
		{MethodName: "Execute", Handler: executeHandler},
		{MethodName: "HealthCheck", Handler: healthCheckHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rpcapi/service.go",
}

func handshakeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HandshakeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TenantWorkerServer).Handshake(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Handshake"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TenantWorkerServer).Handshake(ctx, req.(*HandshakeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CommandRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TenantWorkerServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Execute"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TenantWorkerServer).Execute(ctx, req.(*CommandRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func healthCheckHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HealthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TenantWorkerServer).HealthCheck(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/HealthCheck"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TenantWorkerServer).HealthCheck(ctx, req.(*HealthRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// TenantWorkerClient is the gateway side of the contract. RpcChannelPool
// hands out a TenantWorkerClient per tenant endpoint.
type TenantWorkerClient interface {
	Handshake(ctx context.Context, in *HandshakeRequest, opts ...grpc.CallOption) (*HandshakeResponse, error)
	Execute(ctx context.Context, in *CommandRequest, opts ...grpc.CallOption) (*CommandResponse, error)
	HealthCheck(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error)
}

type tenantWorkerClient struct {
	cc grpc.ClientConnInterface
}

// NewTenantWorkerClient wraps cc (expected to have been dialed with
// grpc.WithDefaultCallOptions(grpc.ForceCodec(JSONCodec{})), see
// internal/rpcpool) in a TenantWorkerClient.
func NewTenantWorkerClient(cc grpc.ClientConnInterface) TenantWorkerClient {
	return &tenantWorkerClient{cc: cc}
}

func (c *tenantWorkerClient) Handshake(ctx context.Context, in *HandshakeRequest, opts ...grpc.CallOption) (*HandshakeResponse, error) {
	out := new(HandshakeResponse)
	if err := c.cc.Invoke(ctx, serviceName+"/Handshake", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *tenantWorkerClient) Execute(ctx context.Context, in *CommandRequest, opts ...grpc.CallOption) (*CommandResponse, error) {
	out := new(CommandResponse)
	if err := c.cc.Invoke(ctx, serviceName+"/Execute", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *tenantWorkerClient) HealthCheck(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	out := new(HealthResponse)
	if err := c.cc.Invoke(ctx, serviceName+"/HealthCheck", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func grpcUnimplemented(method string) error {
	return &unimplementedError{method: method}
}

type unimplementedError struct{ method string }

func (e *unimplementedError) Error() string {
	return "rpcapi: method " + e.method + " not implemented"
}
