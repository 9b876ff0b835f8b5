// Package grpcstore implements deposit.Storage against a remote storaged
// daemon.
package grpcstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/cupledger/internal/storagerpc"
	"github.com/MarkoPoloResearchLab/cupledger/pkg/deposit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const errorOperationStore = "store"

var errUnexpectedListEntry = errors.New("list entry is not a string")

// Store forwards storage calls over a gRPC connection.
type Store struct {
	conn grpc.ClientConnInterface
}

// New wraps an established connection.
func New(conn grpc.ClientConnInterface) *Store {
	return &Store{conn: conn}
}

// Dial connects to address and waits until the connection is ready.
func Dial(ctx context.Context, address string, insecureTransport bool) (*Store, func() error, error) {
	dialOptions := []grpc.DialOption{}
	if insecureTransport {
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		dialOptions = append(dialOptions, grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	conn, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect storage: %w", err)
	}
	conn.Connect()
	if err := waitForClientReady(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("connect storage: %w", err)
	}
	return New(conn), conn.Close, nil
}

func (store *Store) List(ctx context.Context, prefix string) ([]string, error) {
	response := new(structpb.ListValue)
	if err := store.conn.Invoke(ctx, storagerpc.MethodList, wrapperspb.String(prefix), response); err != nil {
		return nil, deposit.WrapError(errorOperationStore, "list", "invoke", err)
	}
	keys := make([]string, 0, len(response.GetValues()))
	for _, value := range response.GetValues() {
		key, ok := value.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, deposit.WrapError(errorOperationStore, "list", "decode", errUnexpectedListEntry)
		}
		keys = append(keys, key.StringValue)
	}
	return keys, nil
}

func (store *Store) Get(ctx context.Context, key string) (string, bool, error) {
	response := new(wrapperspb.StringValue)
	err := store.conn.Invoke(ctx, storagerpc.MethodGet, wrapperspb.String(key), response)
	if status.Code(err) == codes.NotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, deposit.WrapError(errorOperationStore, "get", "invoke", err)
	}
	return response.GetValue(), true, nil
}

func (store *Store) Set(ctx context.Context, key string, value string) error {
	if err := store.conn.Invoke(ctx, storagerpc.MethodSet, storagerpc.NewSetRequest(key, value), new(emptypb.Empty)); err != nil {
		return deposit.WrapError(errorOperationStore, "set", "invoke", err)
	}
	return nil
}

func (store *Store) Delete(ctx context.Context, key string) error {
	if err := store.conn.Invoke(ctx, storagerpc.MethodDelete, wrapperspb.String(key), new(emptypb.Empty)); err != nil {
		return deposit.WrapError(errorOperationStore, "delete", "invoke", err)
	}
	return nil
}

func waitForClientReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if state == connectivity.Shutdown {
			return errors.New("grpc connection shutdown before ready")
		}
		if !conn.WaitForStateChange(ctx, state) {
			if err := ctx.Err(); err != nil {
				return err
			}
			return errors.New("grpc connection failed to reach ready state")
		}
	}
}
