package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "autoapply.v1.AutoApply"

// AutoApplyServer is the server API of the AutoApply service. Every message
// is a google.protobuf.Struct carrying the same JSON shapes as the REST API.
type AutoApplyServer interface {
	ExtractKeywords(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Plan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Send(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Complete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRecords(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(AutoApplyServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AutoApplyServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(AutoApplyServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes the AutoApply service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AutoApplyServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ExtractKeywords", AutoApplyServer.ExtractKeywords),
		unary("Plan", AutoApplyServer.Plan),
		unary("Send", AutoApplyServer.Send),
		unary("Complete", AutoApplyServer.Complete),
		unary("ListRecords", AutoApplyServer.ListRecords),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "autoapply/v1/autoapply.proto",
}

// Register mounts srv on s.
func Register(s grpc.ServiceRegistrar, srv AutoApplyServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the AutoApply service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a Client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Call invokes method with in and returns the response.
func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
