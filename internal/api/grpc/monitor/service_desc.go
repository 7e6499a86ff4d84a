package monitor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "camwatch.v1.MonitorService"

// Full method names.
const (
	MethodGetStatus        = "/" + ServiceName + "/GetStatus"
	MethodListSubscribers  = "/" + ServiceName + "/ListSubscribers"
	MethodAddSubscriber    = "/" + ServiceName + "/AddSubscriber"
	MethodRemoveSubscriber = "/" + ServiceName + "/RemoveSubscriber"
	MethodProbeDevice      = "/" + ServiceName + "/ProbeDevice"
)

// ActorMetadataKey carries "user@host" of the caller for the audit log.
const ActorMetadataKey = "x-camwatch-actor"

// MonitorServiceServer is the server API of camwatch.v1.MonitorService.
type MonitorServiceServer interface {
	GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	ListSubscribers(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	AddSubscriber(ctx context.Context, req *wrapperspb.Int64Value) (*wrapperspb.StringValue, error)
	RemoveSubscriber(ctx context.Context, req *wrapperspb.Int64Value) (*wrapperspb.StringValue, error)
	ProbeDevice(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

// ServiceDesc describes camwatch.v1.MonitorService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MonitorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetStatus",
			Handler:    unaryHandler(MethodGetStatus, MonitorServiceServer.GetStatus),
		},
		{
			MethodName: "ListSubscribers",
			Handler:    unaryHandler(MethodListSubscribers, MonitorServiceServer.ListSubscribers),
		},
		{
			MethodName: "AddSubscriber",
			Handler:    unaryHandler(MethodAddSubscriber, MonitorServiceServer.AddSubscriber),
		},
		{
			MethodName: "RemoveSubscriber",
			Handler:    unaryHandler(MethodRemoveSubscriber, MonitorServiceServer.RemoveSubscriber),
		},
		{
			MethodName: "ProbeDevice",
			Handler:    unaryHandler(MethodProbeDevice, MonitorServiceServer.ProbeDevice),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "camwatch/v1/monitor.proto",
}

// RegisterMonitorServiceServer registers the implementation on the gRPC server.
func RegisterMonitorServiceServer(registrar grpc.ServiceRegistrar, srv MonitorServiceServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// unaryHandler builds the method handler of one unary RPC.
func unaryHandler[Req any, PReq interface {
	*Req
	proto.Message
}, Resp proto.Message](
	fullMethod string,
	call func(MonitorServiceServer, context.Context, PReq) (Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}

		if interceptor == nil {
			return call(srv.(MonitorServiceServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MonitorServiceServer), ctx, req.(PReq))
		}

		return interceptor(ctx, in, info, handler)
	}
}

// MonitorServiceClient is the client API of camwatch.v1.MonitorService.
type MonitorServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewMonitorServiceClient creates a client on top of an established connection.
func NewMonitorServiceClient(cc grpc.ClientConnInterface) *MonitorServiceClient {
	return &MonitorServiceClient{cc: cc}
}

// GetStatus returns the status of every device.
func (c *MonitorServiceClient) GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetStatus, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// ListSubscribers returns subscribers and pending requests.
func (c *MonitorServiceClient) ListSubscribers(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodListSubscribers, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// AddSubscriber subscribes a chat and returns the outcome.
func (c *MonitorServiceClient) AddSubscriber(ctx context.Context, in *wrapperspb.Int64Value, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, MethodAddSubscriber, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// RemoveSubscriber unsubscribes a chat and returns the outcome.
func (c *MonitorServiceClient) RemoveSubscriber(ctx context.Context, in *wrapperspb.Int64Value, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, MethodRemoveSubscriber, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

// ProbeDevice probes one device on demand.
func (c *MonitorServiceClient) ProbeDevice(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodProbeDevice, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
