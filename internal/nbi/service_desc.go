package nbi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// SimulationServiceDesc describes railguard.v1.SimulationService. The
// messages are well-known types, so no generated code is needed.
var SimulationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetState", Handler: getStateHandler},
		{MethodName: "AddTrain", Handler: structHandler("AddTrain", SimulationServer.AddTrain)},
		{MethodName: "DispatchTrain", Handler: structHandler("DispatchTrain", SimulationServer.DispatchTrain)},
		{MethodName: "FindRoute", Handler: structHandler("FindRoute", SimulationServer.FindRoute)},
		{MethodName: "SetOccupancy", Handler: structHandler("SetOccupancy", SimulationServer.SetOccupancy)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "railguard/v1/simulation.proto",
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func getStateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulationServer).GetState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("GetState")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SimulationServer).GetState(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

type structMethod func(SimulationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func structHandler(name string, method structMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(SimulationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return method(srv.(SimulationServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
