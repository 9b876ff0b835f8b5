package grpcserver

import (
	"context"
	"errors"
	"strings"

	"github.com/MarkoPoloResearchLab/cupledger/internal/storagerpc"
	"github.com/MarkoPoloResearchLab/cupledger/pkg/deposit"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	errorEmptyKey       = "empty_key"
	errorMissingKey     = "missing_key"
	errorInvalidEntry   = "invalid_entry"
	errorStorageFailure = "storage_failure"
)

// StorageServiceServer exposes a deposit.Storage over gRPC.
type StorageServiceServer struct {
	storage deposit.Storage
	logger  *zap.Logger
}

// NewStorageServiceServer constructs a gRPC server over storage.
func NewStorageServiceServer(storage deposit.Storage, logger *zap.Logger) *StorageServiceServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageServiceServer{storage: storage, logger: logger}
}

func (service *StorageServiceServer) List(ctx context.Context, request *wrapperspb.StringValue) (*structpb.ListValue, error) {
	keys, err := service.storage.List(ctx, request.GetValue())
	if err != nil {
		return nil, service.mapToGRPCError("list", err)
	}
	values := make([]*structpb.Value, 0, len(keys))
	for _, key := range keys {
		values = append(values, structpb.NewStringValue(key))
	}
	return &structpb.ListValue{Values: values}, nil
}

func (service *StorageServiceServer) Get(ctx context.Context, request *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	key := request.GetValue()
	if strings.TrimSpace(key) == "" {
		return nil, status.Error(codes.InvalidArgument, errorEmptyKey)
	}
	value, found, err := service.storage.Get(ctx, key)
	if err != nil {
		return nil, service.mapToGRPCError("get", err)
	}
	if !found {
		return nil, status.Error(codes.NotFound, errorMissingKey)
	}
	return wrapperspb.String(value), nil
}

func (service *StorageServiceServer) Set(ctx context.Context, request *structpb.Struct) (*emptypb.Empty, error) {
	key, keyOK := stringField(request, storagerpc.FieldKey)
	value, valueOK := stringField(request, storagerpc.FieldValue)
	if !keyOK || !valueOK {
		return nil, status.Error(codes.InvalidArgument, errorInvalidEntry)
	}
	if strings.TrimSpace(key) == "" {
		return nil, status.Error(codes.InvalidArgument, errorEmptyKey)
	}
	if err := service.storage.Set(ctx, key, value); err != nil {
		return nil, service.mapToGRPCError("set", err)
	}
	return &emptypb.Empty{}, nil
}

func (service *StorageServiceServer) Delete(ctx context.Context, request *wrapperspb.StringValue) (*emptypb.Empty, error) {
	key := request.GetValue()
	if strings.TrimSpace(key) == "" {
		return nil, status.Error(codes.InvalidArgument, errorEmptyKey)
	}
	if err := service.storage.Delete(ctx, key); err != nil {
		return nil, service.mapToGRPCError("delete", err)
	}
	return &emptypb.Empty{}, nil
}

func (service *StorageServiceServer) mapToGRPCError(method string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		service.logger.Error("storage call failed", zap.String("method", method), zap.Error(err))
		return status.Error(codes.Unavailable, errorStorageFailure)
	}
}

func stringField(request *structpb.Struct, name string) (string, bool) {
	field, ok := request.GetFields()[name]
	if !ok {
		return "", false
	}
	stringValue, ok := field.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", false
	}
	return stringValue.StringValue, true
}
