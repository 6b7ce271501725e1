package relayfeed

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName              = "marketfeed.v1.RelayService"
	streamLiquidationsMethod = "/" + serviceName + "/StreamLiquidations"
	endSessionMethod         = "/" + serviceName + "/EndSession"
)

// Message types carried in the "type" field of stream messages.
const (
	MsgSessionStarted = "session_started"
	MsgLiquidation    = "liquidation"
	MsgHeartbeat      = "heartbeat"
)

// RelayServer is the server API of the liquidation relay. Messages are
// generic structs; the first message of every stream must be of type
// session_started.
type RelayServer interface {
	StreamLiquidations(*structpb.Struct, LiquidationStream) error
	EndSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type LiquidationStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

func RegisterRelayServer(s grpc.ServiceRegistrar, srv RelayServer) {
	s.RegisterService(&RelayServiceDesc, srv)
}

var RelayServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RelayServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "EndSession",
			Handler:    endSessionHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamLiquidations",
			Handler:       streamLiquidationsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "marketfeed/v1/relay.proto",
}

func streamLiquidationsHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(RelayServer).StreamLiquidations(m, &liquidationStream{stream})
}

func endSessionHandler(
	srv interface{}, ctx context.Context, dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayServer).EndSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: endSessionMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RelayServer).EndSession(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type liquidationStream struct {
	grpc.ServerStream
}

func (s *liquidationStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

type relayClient struct {
	conn *grpc.ClientConn
}

func (c relayClient) streamLiquidations(
	ctx context.Context, req *structpb.Struct,
) (grpc.ClientStream, error) {
	stream, err := c.conn.NewStream(
		ctx, &RelayServiceDesc.Streams[0], streamLiquidationsMethod,
	)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return stream, nil
}

func (c relayClient) endSession(
	ctx context.Context, req *structpb.Struct,
) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, endSessionMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}
