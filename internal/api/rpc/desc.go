package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// The service uses the protobuf well-known Struct type for its messages,
// so it needs no generated code:
//
//	service GripperService {
//	  rpc GetStatus(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc ExecuteGoal(google.protobuf.Struct) returns (stream google.protobuf.Struct);
//	  rpc ExecuteCommand(google.protobuf.Struct) returns (stream google.protobuf.Struct);
//	}
const ServiceName = "robotiq.v1.GripperService"

const (
	getStatusMethod      = "/" + ServiceName + "/GetStatus"
	executeGoalMethod    = "/" + ServiceName + "/ExecuteGoal"
	executeCommandMethod = "/" + ServiceName + "/ExecuteCommand"
)

type GripperServiceServer interface {
	GetStatus(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	ExecuteGoal(in *structpb.Struct, stream GoalStream) error
	ExecuteCommand(in *structpb.Struct, stream GoalStream) error
}

// GoalStream is the server side of a goal stream.
type GoalStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type goalStream struct {
	grpc.ServerStream
}

func (s *goalStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GripperServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "ExecuteGoal", Handler: executeGoalHandler, ServerStreams: true},
		{StreamName: "ExecuteCommand", Handler: executeCommandHandler, ServerStreams: true},
	},
	Metadata: "robotiq/v1/gripper.proto",
}

func getStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GripperServiceServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getStatusMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GripperServiceServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func executeGoalHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(GripperServiceServer).ExecuteGoal(in, &goalStream{stream})
}

func executeCommandHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(GripperServiceServer).ExecuteCommand(in, &goalStream{stream})
}

// Client is a thin client for GripperService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// GoalStreamClient receives feedback messages followed by one result.
type GoalStreamClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type goalStreamClient struct {
	grpc.ClientStream
}

func (c *goalStreamClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getStatusMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ExecuteGoal(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (GoalStreamClient, error) {
	return c.openStream(ctx, &ServiceDesc.Streams[0], executeGoalMethod, in, opts...)
}

func (c *Client) ExecuteCommand(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (GoalStreamClient, error) {
	return c.openStream(ctx, &ServiceDesc.Streams[1], executeCommandMethod, in, opts...)
}

func (c *Client) openStream(ctx context.Context, desc *grpc.StreamDesc, method string, in *structpb.Struct, opts ...grpc.CallOption) (GoalStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, desc, method, opts...)
	if err != nil {
		return nil, err
	}
	x := &goalStreamClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
