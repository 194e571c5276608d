// Package rankerv1 holds the service definition of snowflow.ranker.v1.Ranker
// (api/proto/snowflow/ranker/v1/ranker.proto). Every message is a well-known
// type, so only the service descriptor, server interface and client live here.
package rankerv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	Ranker_Predict_FullMethodName   = "/snowflow.ranker.v1.Ranker/Predict"
	Ranker_Explain_FullMethodName   = "/snowflow.ranker.v1.Ranker/Explain"
	Ranker_ModelInfo_FullMethodName = "/snowflow.ranker.v1.Ranker/ModelInfo"
)

// RankerServer is the server API for the Ranker service.
type RankerServer interface {
	Predict(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Explain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ModelInfo(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// UnimplementedRankerServer can be embedded to have forward compatible implementations.
type UnimplementedRankerServer struct{}

func (UnimplementedRankerServer) Predict(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Predict not implemented")
}

func (UnimplementedRankerServer) Explain(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Explain not implemented")
}

func (UnimplementedRankerServer) ModelInfo(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ModelInfo not implemented")
}

// RegisterRankerServer registers srv with s.
func RegisterRankerServer(s grpc.ServiceRegistrar, srv RankerServer) {
	s.RegisterService(&Ranker_ServiceDesc, srv)
}

func _Ranker_Predict_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RankerServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Ranker_Predict_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RankerServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Ranker_Explain_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RankerServer).Explain(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Ranker_Explain_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RankerServer).Explain(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Ranker_ModelInfo_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RankerServer).ModelInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Ranker_ModelInfo_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RankerServer).ModelInfo(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Ranker_ServiceDesc is the grpc.ServiceDesc for the Ranker service.
var Ranker_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "snowflow.ranker.v1.Ranker",
	HandlerType: (*RankerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: _Ranker_Predict_Handler},
		{MethodName: "Explain", Handler: _Ranker_Explain_Handler},
		{MethodName: "ModelInfo", Handler: _Ranker_ModelInfo_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "snowflow/ranker/v1/ranker.proto",
}

// RankerClient is the client API for the Ranker service.
type RankerClient interface {
	Predict(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Explain(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ModelInfo(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type rankerClient struct {
	cc grpc.ClientConnInterface
}

// NewRankerClient returns a client over cc.
func NewRankerClient(cc grpc.ClientConnInterface) RankerClient {
	return &rankerClient{cc}
}

func (c *rankerClient) Predict(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Ranker_Predict_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *rankerClient) Explain(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Ranker_Explain_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *rankerClient) ModelInfo(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, Ranker_ModelInfo_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
