package deposit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"
)

const (
	itemValue         = "Latte"
	storeValue        = "7-11"
	redeemMethodValue = "Line禮物"
	errStoreMessage   = "storage unavailable"
)

var (
	errStorageFailure = errors.New(errStoreMessage)
	fixedNow          = time.Date(2024, time.June, 10, 9, 30, 15, 123456789, time.UTC)
)

type stubStorage struct {
	values      map[string]string
	listError   error
	getErrors   map[string]error
	setError    error
	deleteError error
	listCalls   int
	getCalls    int
	setCalls    int
	deleteCalls int
}

func newStubStorage() *stubStorage {
	return &stubStorage{
		values:    map[string]string{},
		getErrors: map[string]error{},
	}
}

func (storage *stubStorage) List(_ context.Context, prefix string) ([]string, error) {
	storage.listCalls++
	if storage.listError != nil {
		return nil, storage.listError
	}
	keys := make([]string, 0, len(storage.values))
	for key := range storage.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (storage *stubStorage) Get(_ context.Context, key string) (string, bool, error) {
	storage.getCalls++
	if err := storage.getErrors[key]; err != nil {
		return "", false, err
	}
	value, ok := storage.values[key]
	return value, ok, nil
}

func (storage *stubStorage) Set(_ context.Context, key string, value string) error {
	storage.setCalls++
	if storage.setError != nil {
		return storage.setError
	}
	storage.values[key] = value
	return nil
}

func (storage *stubStorage) Delete(_ context.Context, key string) error {
	storage.deleteCalls++
	if storage.deleteError != nil {
		return storage.deleteError
	}
	delete(storage.values, key)
	return nil
}

func (storage *stubStorage) totalCalls() int {
	return storage.listCalls + storage.getCalls + storage.setCalls + storage.deleteCalls
}

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func sequentialIDs() func() string {
	counter := 0
	return func() string {
		counter++
		return fmt.Sprintf("dep-%03d", counter)
	}
}

func mustNewStore(test *testing.T, storage Storage, options ...StoreOption) *Store {
	test.Helper()
	options = append([]StoreOption{WithIDGenerator(sequentialIDs())}, options...)
	store, err := NewStore(storage, func() time.Time { return fixedNow }, options...)
	if err != nil {
		test.Fatalf("store init failed: %v", err)
	}
	return store
}

func mustExpiryDate(test *testing.T, raw string) ExpiryDate {
	test.Helper()
	date, err := ParseExpiryDate(raw)
	if err != nil {
		test.Fatalf("expiry date %q: %v", raw, err)
	}
	return date
}

func mustDepositID(test *testing.T, raw string) DepositID {
	test.Helper()
	id, err := NewDepositID(raw)
	if err != nil {
		test.Fatalf("deposit id %q: %v", raw, err)
	}
	return id
}

func validDraft(test *testing.T, quantity int64) Draft {
	test.Helper()
	return Draft{
		Item:         itemValue,
		Quantity:     quantity,
		Store:        storeValue,
		RedeemMethod: redeemMethodValue,
		ExpiryDate:   mustExpiryDate(test, "2024-07-01"),
	}
}

func mustCreate(test *testing.T, store *Store, draft Draft) Record {
	test.Helper()
	record, err := store.Create(context.Background(), draft)
	if err != nil {
		test.Fatalf("create failed: %v", err)
	}
	return record
}

func mustEncode(test *testing.T, record Record) string {
	test.Helper()
	value, err := EncodeRecord(record)
	if err != nil {
		test.Fatalf("encode failed: %v", err)
	}
	return value
}
