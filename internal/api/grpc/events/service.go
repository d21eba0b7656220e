package events

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "agentupdater.events.v1.EventService"
	// PushEventMethod is the full method name of the only RPC.
	PushEventMethod = "/" + ServiceName + "/PushEvent"

	// MetadataAPIKey carries the account API key.
	MetadataAPIKey = "x-api-key"
	// MetadataDeviceKey carries the device key.
	MetadataDeviceKey = "x-device-key"
)

// EventServiceServer is the server API of the event service.
type EventServiceServer interface {
	PushEvent(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

// ServiceDesc describes the event service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PushEvent",
			Handler:    pushEventHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "agentupdater/events/v1/events.proto",
}

// Register attaches srv to registrar.
func Register(registrar grpc.ServiceRegistrar, srv EventServiceServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

//nolint:revive // Signature is dictated by grpc.MethodDesc.
func pushEventHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(EventServiceServer).PushEvent(ctx, in) //nolint:forcetypeassert // Guaranteed by HandlerType.
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: PushEventMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EventServiceServer).PushEvent(ctx, req.(*structpb.Struct)) //nolint:forcetypeassert // See above.
	}

	return interceptor(ctx, in, info, handler)
}
