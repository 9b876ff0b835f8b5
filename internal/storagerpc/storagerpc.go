// Package storagerpc defines the gRPC contract of the remote key-value
// storage service. Messages are protobuf well-known types so no generated
// code is needed: keys and prefixes travel as StringValue, listings as a
// ListValue of strings, and writes as a Struct with "key" and "value" fields.
package storagerpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "cupledger.storage.v1.StorageService"

	MethodList   = "/" + ServiceName + "/List"
	MethodGet    = "/" + ServiceName + "/Get"
	MethodSet    = "/" + ServiceName + "/Set"
	MethodDelete = "/" + ServiceName + "/Delete"

	FieldKey   = "key"
	FieldValue = "value"
)

// StorageServiceServer is the server API for the storage service.
type StorageServiceServer interface {
	List(ctx context.Context, prefix *wrapperspb.StringValue) (*structpb.ListValue, error)
	Get(ctx context.Context, key *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Set(ctx context.Context, entry *structpb.Struct) (*emptypb.Empty, error)
	Delete(ctx context.Context, key *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// RegisterStorageServiceServer attaches server to a gRPC registrar.
func RegisterStorageServiceServer(registrar grpc.ServiceRegistrar, server StorageServiceServer) {
	registrar.RegisterService(&storageServiceDesc, server)
}

// NewSetRequest builds the Struct carried by a Set call.
func NewSetRequest(key string, value string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldKey:   structpb.NewStringValue(key),
		FieldValue: structpb.NewStringValue(value),
	}}
}

var storageServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StorageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "List",
			Handler: unaryHandler(MethodList, func(server StorageServiceServer, ctx context.Context, request *wrapperspb.StringValue) (any, error) {
				return server.List(ctx, request)
			}),
		},
		{
			MethodName: "Get",
			Handler: unaryHandler(MethodGet, func(server StorageServiceServer, ctx context.Context, request *wrapperspb.StringValue) (any, error) {
				return server.Get(ctx, request)
			}),
		},
		{
			MethodName: "Set",
			Handler: unaryHandler(MethodSet, func(server StorageServiceServer, ctx context.Context, request *structpb.Struct) (any, error) {
				return server.Set(ctx, request)
			}),
		},
		{
			MethodName: "Delete",
			Handler: unaryHandler(MethodDelete, func(server StorageServiceServer, ctx context.Context, request *wrapperspb.StringValue) (any, error) {
				return server.Delete(ctx, request)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cupledger/storage/v1",
}

func unaryHandler[Request any](fullMethod string, invoke func(StorageServiceServer, context.Context, *Request) (any, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		request := new(Request)
		if err := dec(request); err != nil {
			return nil, err
		}
		server := srv.(StorageServiceServer)
		if interceptor == nil {
			return invoke(server, ctx, request)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return invoke(server, ctx, req.(*Request))
		}
		return interceptor(ctx, request, info, handler)
	}
}
