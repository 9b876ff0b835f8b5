package deposit

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RedeemOutcome describes what a Redeem call did.
type RedeemOutcome string

const (
	RedeemMissed      RedeemOutcome = "missed"
	RedeemDecremented RedeemOutcome = "decremented"
	RedeemExhausted   RedeemOutcome = "exhausted"
)

// RedeemResult reports the outcome of a redemption and the affected record
// as it stands afterwards (the removed record for RedeemExhausted).
type RedeemResult struct {
	Outcome RedeemOutcome
	Record  Record
}

// Store owns the in-memory mirror of persisted deposit records and keeps it
// consistent with Storage after every mutating call.
type Store struct {
	mu        sync.Mutex
	storage   Storage
	keyPrefix string
	nowFn     func() time.Time
	newID     func() string
	logger    OperationLogger
	records   []Record
}

// NewStore wires a Store.
func NewStore(storage Storage, now func() time.Time, options ...StoreOption) (*Store, error) {
	if storage == nil {
		return nil, fmt.Errorf("%w: storage dependency is nil", ErrInvalidStoreConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidStoreConfig)
	}
	store := &Store{
		storage:   storage,
		keyPrefix: DefaultKeyPrefix,
		nowFn:     now,
		newID:     newTimeOrderedID,
	}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	if store.keyPrefix == "" {
		return nil, fmt.Errorf("%w: key prefix is empty", ErrInvalidStoreConfig)
	}
	if store.newID == nil {
		return nil, fmt.Errorf("%w: id generator is nil", ErrInvalidStoreConfig)
	}
	return store, nil
}

// newTimeOrderedID returns a UUIDv7, whose leading bits are the creation
// time in milliseconds.
func newTimeOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// KeyPrefix returns the storage namespace prefix.
func (store *Store) KeyPrefix() string {
	return store.keyPrefix
}

// Key returns the storage key of a deposit id.
func (store *Store) Key(id DepositID) string {
	return store.keyPrefix + id.String()
}

// Load replaces the in-memory collection with every decodable record in storage.
// Values that cannot be fetched or decoded, and records whose id differs from
// their key suffix, are skipped and reported to the logger.
func (store *Store) Load(ctx context.Context) ([]Record, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	keys, err := store.storage.List(ctx, store.keyPrefix)
	if err != nil {
		operationError := storageError(errorCodeList, err)
		store.logOperation(ctx, OperationLog{Operation: operationLoad, Error: operationError})
		return nil, operationError
	}
	loaded := make([]Record, 0, len(keys))
	for _, key := range keys {
		record, err := store.fetch(ctx, key)
		if err != nil {
			store.logOperation(ctx, OperationLog{
				Operation: operationLoad,
				Key:       key,
				Status:    StatusSkipped,
				Error:     err,
			})
			continue
		}
		loaded = append(loaded, record)
	}
	store.records = loaded
	store.logOperation(ctx, OperationLog{Operation: operationLoad})
	return store.snapshot(), nil
}

func (store *Store) fetch(ctx context.Context, key string) (Record, error) {
	value, found, err := store.storage.Get(ctx, key)
	if err != nil {
		return Record{}, storageError(errorCodeGet, err)
	}
	if !found {
		return Record{}, storageError(errorCodeMissing, fmt.Errorf("key %q vanished", key))
	}
	record, err := DecodeRecord(value)
	if err != nil {
		return Record{}, deserializationError(errorCodeDecode, err)
	}
	if suffix := strings.TrimPrefix(key, store.keyPrefix); record.ID.String() != suffix {
		return Record{}, deserializationError(errorCodeKeyMismatch, fmt.Errorf("%w: id %q stored under key %q", ErrInvalidDepositID, record.ID, key))
	}
	return record, nil
}

// Create validates a draft, persists it as a new record and appends it to
// the collection. Validation failures never reach storage.
func (store *Store) Create(ctx context.Context, draft Draft) (Record, error) {
	record, err := store.newRecord(draft)
	if err != nil {
		store.logOperation(ctx, OperationLog{Operation: operationCreate, Error: err})
		return Record{}, err
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	record.ID, err = NewDepositID(store.newID())
	if err != nil {
		store.logOperation(ctx, OperationLog{Operation: operationCreate, Error: err})
		return Record{}, err
	}
	operationError := store.persist(ctx, record)
	if operationError == nil {
		store.records = append(store.records, record)
	}
	store.logOperation(ctx, OperationLog{
		Operation: operationCreate,
		Key:       store.Key(record.ID),
		DepositID: record.ID,
		Quantity:  record.Quantity,
		Error:     operationError,
	})
	if operationError != nil {
		return Record{}, operationError
	}
	return record, nil
}

func (store *Store) newRecord(draft Draft) (Record, error) {
	item := strings.TrimSpace(draft.Item)
	if item == "" {
		return Record{}, validationError(ErrInvalidItem, "item is required")
	}
	quantity, err := NewQuantity(draft.Quantity)
	if err != nil {
		return Record{}, validationError(ErrInvalidQuantity, "quantity must be at least one")
	}
	storeName := strings.TrimSpace(draft.Store)
	if storeName == "" {
		return Record{}, validationError(ErrInvalidStore, "store is required")
	}
	redeemMethod := strings.TrimSpace(draft.RedeemMethod)
	if redeemMethod == "" {
		return Record{}, validationError(ErrInvalidRedeemMethod, "redeem method is required")
	}
	if draft.ExpiryDate.IsZero() {
		return Record{}, validationError(ErrInvalidExpiryDate, "expiry date is required")
	}
	return Record{
		Item:         item,
		Quantity:     quantity,
		Store:        storeName,
		RedeemMethod: redeemMethod,
		ExpiryDate:   draft.ExpiryDate,
		CreatedAt:    store.nowFn().UTC().Truncate(time.Millisecond),
	}, nil
}

// Redeem consumes one cup. A record holding several cups is rewritten with
// one fewer; the last cup removes the record. Unknown ids are ignored.
func (store *Store) Redeem(ctx context.Context, id DepositID) (RedeemResult, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	index := store.indexOf(id)
	if index < 0 {
		return RedeemResult{Outcome: RedeemMissed}, nil
	}
	current := store.records[index]
	if current.Quantity <= 1 {
		if err := store.remove(ctx, id); err != nil {
			store.logOperation(ctx, OperationLog{Operation: operationRedeem, Key: store.Key(id), DepositID: id, Quantity: current.Quantity, Error: err})
			return RedeemResult{}, err
		}
		store.logOperation(ctx, OperationLog{Operation: operationRedeem, Key: store.Key(id), DepositID: id})
		return RedeemResult{Outcome: RedeemExhausted, Record: current}, nil
	}

	updated := current.withQuantity(current.Quantity - 1)
	operationError := store.persist(ctx, updated)
	if operationError == nil {
		store.records[index] = updated
	}
	store.logOperation(ctx, OperationLog{
		Operation: operationRedeem,
		Key:       store.Key(id),
		DepositID: id,
		Quantity:  updated.Quantity,
		Error:     operationError,
	})
	if operationError != nil {
		return RedeemResult{}, operationError
	}
	return RedeemResult{Outcome: RedeemDecremented, Record: updated}, nil
}

// Delete removes the record's storage key and then drops it from the collection.
func (store *Store) Delete(ctx context.Context, id DepositID) error {
	if id.IsZero() {
		return validationError(ErrInvalidDepositID, "deposit id is required")
	}
	store.mu.Lock()
	defer store.mu.Unlock()

	operationError := store.remove(ctx, id)
	store.logOperation(ctx, OperationLog{
		Operation: operationDelete,
		Key:       store.Key(id),
		DepositID: id,
		Error:     operationError,
	})
	return operationError
}

// Records returns a copy of the in-memory collection in insertion order.
func (store *Store) Records() []Record {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.snapshot()
}

// Get returns the record with the given id from the in-memory collection.
func (store *Store) Get(id DepositID) (Record, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	index := store.indexOf(id)
	if index < 0 {
		return Record{}, false
	}
	return store.records[index], true
}

// Now returns the store clock's current time.
func (store *Store) Now() time.Time {
	return store.nowFn()
}

func (store *Store) persist(ctx context.Context, record Record) error {
	value, err := EncodeRecord(record)
	if err != nil {
		return WrapError(errorOperationDeposit, errorSubjectRecord, errorCodeEncode, err)
	}
	if err := store.storage.Set(ctx, store.Key(record.ID), value); err != nil {
		return storageError(errorCodeSet, err)
	}
	return nil
}

// remove must be called with mu held.
func (store *Store) remove(ctx context.Context, id DepositID) error {
	if err := store.storage.Delete(ctx, store.Key(id)); err != nil {
		return storageError(errorCodeDelete, err)
	}
	if index := store.indexOf(id); index >= 0 {
		store.records = slices.Delete(store.records, index, index+1)
	}
	return nil
}

func (store *Store) indexOf(id DepositID) int {
	for index, record := range store.records {
		if record.ID == id {
			return index
		}
	}
	return -1
}

func (store *Store) snapshot() []Record {
	records := make([]Record, len(store.records))
	copy(records, store.records)
	return records
}

func (store *Store) logOperation(ctx context.Context, entry OperationLog) {
	if store.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = StatusError
		} else {
			entry.Status = StatusOK
		}
	}
	store.logger.LogOperation(ctx, entry)
}
