package deposit

import "context"

// StoreOption configures a Store instance.
type StoreOption func(*Store)

// OperationLogger records domain-level events emitted by Store operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a store operation or a record skipped during load.
type OperationLog struct {
	Operation string
	Key       string
	DepositID DepositID
	Quantity  Quantity
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) StoreOption {
	return func(store *Store) {
		store.logger = logger
	}
}

// WithKeyPrefix overrides the storage namespace prefix.
func WithKeyPrefix(prefix string) StoreOption {
	return func(store *Store) {
		store.keyPrefix = prefix
	}
}

// WithIDGenerator overrides the deposit id source. The store calls it with
// its lock held, so the generator need not be safe for concurrent use.
func WithIDGenerator(generate func() string) StoreOption {
	return func(store *Store) {
		store.newID = generate
	}
}
