// Package grpcchip reaches a chip owned by another process over gRPC. The
// server side wraps any hal.Chip; the client side is itself a hal.Chip, so
// the adapter cannot tell a remote chip from a local one.
//
// The service uses well-known wrapper messages rather than generated code:
//
//	Open(Empty) returns (stream BytesValue)
//	Close(Empty) returns (Empty)
//	CoreInit(Empty) returns (UInt32Value)
//	SessionInit(Int32Value) returns (UInt32Value)
//	Send(BytesValue) returns (UInt32Value)
//
// Every frame on the Open stream starts with a tag byte. The first frame is
// tagReady once the chip has opened; after that tagFragment frames carry one
// UCI fragment and tagEvent frames carry a HAL event kind and status. The
// stream ending for any reason other than Close means the chip is gone.
package grpcchip

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "uwb.hal.Chip"

const (
	methodOpen        = "/" + ServiceName + "/Open"
	methodClose       = "/" + ServiceName + "/Close"
	methodCoreInit    = "/" + ServiceName + "/CoreInit"
	methodSessionInit = "/" + ServiceName + "/SessionInit"
	methodSend        = "/" + ServiceName + "/Send"
)

// Open stream frame tags.
const (
	tagFragment byte = 0x00
	tagEvent    byte = 0x01
	tagReady    byte = 0x02
)

// maxMsgSize bounds a single frame. UCI fragments are tiny; the limit only
// matters for a misbehaving peer.
const maxMsgSize = 1 << 20

type chipServer interface {
	open(*emptypb.Empty, grpc.ServerStream) error
	close(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	coreInit(context.Context, *emptypb.Empty) (*wrapperspb.UInt32Value, error)
	sessionInit(context.Context, *wrapperspb.Int32Value) (*wrapperspb.UInt32Value, error)
	send(context.Context, *wrapperspb.BytesValue) (*wrapperspb.UInt32Value, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*chipServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Close", methodClose, new(emptypb.Empty), chipServer.close),
		unary("CoreInit", methodCoreInit, new(emptypb.Empty), chipServer.coreInit),
		unary("SessionInit", methodSessionInit, new(wrapperspb.Int32Value), chipServer.sessionInit),
		unary("Send", methodSend, new(wrapperspb.BytesValue), chipServer.send),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "Open",
		Handler:       openHandler,
		ServerStreams: true,
	}},
	Metadata: "uwb/hal/chip.proto",
}

// unary builds the method descriptor the way protoc-gen-go-grpc would,
// interceptor support included. prototype is an empty request.
func unary[Req proto.Message, Rsp any](name, full string, prototype Req, call func(chipServer, context.Context, Req) (Rsp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := prototype.ProtoReflect().New().Interface().(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(chipServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(chipServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func openHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(chipServer).open(in, stream)
}
