package deposit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewStoreRequiresDependencies(test *testing.T) {
	test.Parallel()
	clock := func() time.Time { return fixedNow }
	testCases := []struct {
		name    string
		storage Storage
		clock   func() time.Time
		options []StoreOption
	}{
		{name: "nil storage", storage: nil, clock: clock},
		{name: "nil clock", storage: newStubStorage(), clock: nil},
		{name: "empty prefix", storage: newStubStorage(), clock: clock, options: []StoreOption{WithKeyPrefix("")}},
		{name: "nil id generator", storage: newStubStorage(), clock: clock, options: []StoreOption{WithIDGenerator(nil)}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			_, err := NewStore(testCase.storage, testCase.clock, testCase.options...)
			if !errors.Is(err, ErrInvalidStoreConfig) {
				test.Fatalf("expected ErrInvalidStoreConfig, got %v", err)
			}
		})
	}
}

func TestCreatePersistsAndAppends(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	store := mustNewStore(test, storage)

	record := mustCreate(test, store, validDraft(test, 3))

	if record.ID.String() != "dep-001" {
		test.Fatalf("expected generated id dep-001, got %q", record.ID.String())
	}
	if !record.CreatedAt.Equal(fixedNow.Truncate(time.Millisecond)) {
		test.Fatalf("expected createdAt %v, got %v", fixedNow.Truncate(time.Millisecond), record.CreatedAt)
	}
	stored, ok := storage.values["coffee:dep-001"]
	if !ok {
		test.Fatalf("expected record under coffee:dep-001, got keys %v", storage.values)
	}
	decoded, err := DecodeRecord(stored)
	if err != nil {
		test.Fatalf("stored value does not decode: %v", err)
	}
	if decoded != record {
		test.Fatalf("expected stored %+v, got %+v", record, decoded)
	}
	if records := store.Records(); len(records) != 1 || records[0] != record {
		test.Fatalf("expected in-memory collection [%+v], got %+v", record, records)
	}
}

func TestCreateAssignsUniqueIDs(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	store, err := NewStore(storage, func() time.Time { return fixedNow })
	if err != nil {
		test.Fatalf("store init failed: %v", err)
	}
	seen := map[DepositID]struct{}{}
	for index := 0; index < 50; index++ {
		record := mustCreate(test, store, validDraft(test, 1))
		if _, exists := seen[record.ID]; exists {
			test.Fatalf("duplicate id %q on create %d", record.ID.String(), index)
		}
		seen[record.ID] = struct{}{}
	}
	if len(storage.values) != 50 {
		test.Fatalf("expected 50 stored records, got %d", len(storage.values))
	}
}

func TestCreateCallsIDGeneratorUnderLock(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	next := 0
	unguarded := func() string {
		next++
		return fmt.Sprintf("dep-%03d", next)
	}
	store := mustNewStore(test, storage)
	WithIDGenerator(unguarded)(store)

	const creators = 32
	draft := validDraft(test, 1)
	var group sync.WaitGroup
	failures := make(chan error, creators)
	for index := 0; index < creators; index++ {
		group.Add(1)
		go func() {
			defer group.Done()
			if _, err := store.Create(context.Background(), draft); err != nil {
				failures <- err
			}
		}()
	}
	group.Wait()
	close(failures)
	for err := range failures {
		test.Fatalf("create failed: %v", err)
	}
	if len(storage.values) != creators || len(store.Records()) != creators {
		test.Fatalf("expected %d distinct records, got %d stored and %d in memory", creators, len(storage.values), len(store.Records()))
	}
}

func TestCreateValidationNeverTouchesStorage(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		mutate   func(draft *Draft)
		fieldErr error
	}{
		{name: "missing item", mutate: func(draft *Draft) { draft.Item = "  " }, fieldErr: ErrInvalidItem},
		{name: "zero quantity", mutate: func(draft *Draft) { draft.Quantity = 0 }, fieldErr: ErrInvalidQuantity},
		{name: "negative quantity", mutate: func(draft *Draft) { draft.Quantity = -2 }, fieldErr: ErrInvalidQuantity},
		{name: "missing store", mutate: func(draft *Draft) { draft.Store = "" }, fieldErr: ErrInvalidStore},
		{name: "missing redeem method", mutate: func(draft *Draft) { draft.RedeemMethod = "" }, fieldErr: ErrInvalidRedeemMethod},
		{name: "missing expiry date", mutate: func(draft *Draft) { draft.ExpiryDate = ExpiryDate{} }, fieldErr: ErrInvalidExpiryDate},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			storage := newStubStorage()
			store := mustNewStore(test, storage)
			draft := validDraft(test, 2)
			testCase.mutate(&draft)

			_, err := store.Create(context.Background(), draft)
			if !errors.Is(err, ErrValidation) || !errors.Is(err, testCase.fieldErr) {
				test.Fatalf("expected validation error wrapping %v, got %v", testCase.fieldErr, err)
			}
			if storage.totalCalls() != 0 {
				test.Fatalf("expected no storage calls, got %d", storage.totalCalls())
			}
			if len(store.Records()) != 0 {
				test.Fatalf("expected empty collection, got %+v", store.Records())
			}
		})
	}
}

func TestCreateStorageFailureLeavesCollectionUnchanged(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	store := mustNewStore(test, storage)
	first := mustCreate(test, store, validDraft(test, 1))
	storage.setError = errStorageFailure

	_, err := store.Create(context.Background(), validDraft(test, 2))
	if !errors.Is(err, ErrStorage) || !errors.Is(err, errStorageFailure) {
		test.Fatalf("expected storage error, got %v", err)
	}
	var operationError OperationError
	if !errors.As(err, &operationError) || operationError.Code() != errorCodeSet {
		test.Fatalf("expected operation error with code %q, got %v", errorCodeSet, err)
	}
	records := store.Records()
	if len(records) != 1 || records[0] != first {
		test.Fatalf("expected collection to keep only the first record, got %+v", records)
	}
}

func TestRedeemDecrementsQuantity(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	store := mustNewStore(test, storage)
	record := mustCreate(test, store, validDraft(test, 3))

	result, err := store.Redeem(context.Background(), record.ID)
	if err != nil {
		test.Fatalf("redeem failed: %v", err)
	}
	if result.Outcome != RedeemDecremented || result.Record.Quantity != 2 {
		test.Fatalf("expected decremented record with 2 cups, got %+v", result)
	}
	stored, err := DecodeRecord(storage.values[store.Key(record.ID)])
	if err != nil {
		test.Fatalf("stored value does not decode: %v", err)
	}
	if stored.Quantity != 2 || !stored.CreatedAt.Equal(record.CreatedAt) || stored.ID != record.ID {
		test.Fatalf("expected stored copy with quantity 2 and same identity, got %+v", stored)
	}
	inMemory, ok := store.Get(record.ID)
	if !ok || inMemory.Quantity != 2 {
		test.Fatalf("expected in-memory quantity 2, got %+v (found=%t)", inMemory, ok)
	}
}

func TestRedeemLastCupRemovesRecord(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	store := mustNewStore(test, storage)
	record := mustCreate(test, store, validDraft(test, 1))
	setCallsBefore := storage.setCalls

	result, err := store.Redeem(context.Background(), record.ID)
	if err != nil {
		test.Fatalf("redeem failed: %v", err)
	}
	if result.Outcome != RedeemExhausted || result.Record.ID != record.ID {
		test.Fatalf("expected exhausted outcome for %q, got %+v", record.ID.String(), result)
	}
	if storage.setCalls != setCallsBefore {
		test.Fatalf("expected no write of a zero quantity, got %d extra set calls", storage.setCalls-setCallsBefore)
	}
	if _, exists := storage.values[store.Key(record.ID)]; exists {
		test.Fatalf("expected storage key removed")
	}
	if _, ok := store.Get(record.ID); ok {
		test.Fatalf("expected record removed from memory")
	}
}

func TestRedeemUntilExhausted(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	store := mustNewStore(test, storage)
	record := mustCreate(test, store, validDraft(test, 4))

	for expected := int64(3); expected >= 1; expected-- {
		result, err := store.Redeem(context.Background(), record.ID)
		if err != nil {
			test.Fatalf("redeem failed: %v", err)
		}
		if result.Record.Quantity.Int64() != expected {
			test.Fatalf("expected %d cups left, got %d", expected, result.Record.Quantity)
		}
	}
	result, err := store.Redeem(context.Background(), record.ID)
	if err != nil || result.Outcome != RedeemExhausted {
		test.Fatalf("expected final redeem to exhaust, got %+v err=%v", result, err)
	}
	if len(storage.values) != 0 || len(store.Records()) != 0 {
		test.Fatalf("expected nothing left, storage=%v memory=%+v", storage.values, store.Records())
	}
}

func TestRedeemUnknownIDIsNoop(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	store := mustNewStore(test, storage)
	record := mustCreate(test, store, validDraft(test, 2))
	callsBefore := storage.totalCalls()

	result, err := store.Redeem(context.Background(), mustDepositID(test, "missing"))
	if err != nil {
		test.Fatalf("expected no error, got %v", err)
	}
	if result.Outcome != RedeemMissed {
		test.Fatalf("expected missed outcome, got %q", result.Outcome)
	}
	if storage.totalCalls() != callsBefore {
		test.Fatalf("expected no storage calls, got %d", storage.totalCalls()-callsBefore)
	}
	if records := store.Records(); len(records) != 1 || records[0] != record {
		test.Fatalf("expected unchanged collection, got %+v", records)
	}
}

func TestRedeemStorageFailureLeavesStateUnchanged(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		quantity  int64
		configure func(storage *stubStorage)
	}{
		{name: "decrement write fails", quantity: 2, configure: func(storage *stubStorage) { storage.setError = errStorageFailure }},
		{name: "exhaust delete fails", quantity: 1, configure: func(storage *stubStorage) { storage.deleteError = errStorageFailure }},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			storage := newStubStorage()
			store := mustNewStore(test, storage)
			record := mustCreate(test, store, validDraft(test, testCase.quantity))
			testCase.configure(storage)

			_, err := store.Redeem(context.Background(), record.ID)
			if !errors.Is(err, ErrStorage) {
				test.Fatalf("expected storage error, got %v", err)
			}
			inMemory, ok := store.Get(record.ID)
			if !ok || inMemory != record {
				test.Fatalf("expected untouched record %+v, got %+v (found=%t)", record, inMemory, ok)
			}
		})
	}
}

func TestDeleteRemovesRecord(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	store := mustNewStore(test, storage)
	first := mustCreate(test, store, validDraft(test, 2))
	second := mustCreate(test, store, validDraft(test, 5))

	if err := store.Delete(context.Background(), first.ID); err != nil {
		test.Fatalf("delete failed: %v", err)
	}
	if _, exists := storage.values[store.Key(first.ID)]; exists {
		test.Fatalf("expected storage key removed")
	}
	if records := store.Records(); len(records) != 1 || records[0] != second {
		test.Fatalf("expected only second record left, got %+v", records)
	}
}

func TestDeleteStorageFailureKeepsRecord(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	store := mustNewStore(test, storage)
	record := mustCreate(test, store, validDraft(test, 2))
	storage.deleteError = errStorageFailure

	err := store.Delete(context.Background(), record.ID)
	if !errors.Is(err, ErrStorage) || !errors.Is(err, errStorageFailure) {
		test.Fatalf("expected storage error, got %v", err)
	}
	if _, ok := store.Get(record.ID); !ok {
		test.Fatalf("expected record kept in memory after failed delete")
	}
}

func TestDeleteRejectsEmptyID(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	store := mustNewStore(test, storage)

	err := store.Delete(context.Background(), DepositID{})
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrInvalidDepositID) {
		test.Fatalf("expected invalid deposit id, got %v", err)
	}
	if storage.totalCalls() != 0 {
		test.Fatalf("expected no storage calls, got %d", storage.totalCalls())
	}
}

func TestLoadRoundTripsRecords(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	writer := mustNewStore(test, storage)
	created := []Record{
		mustCreate(test, writer, validDraft(test, 1)),
		mustCreate(test, writer, validDraft(test, 4)),
	}

	reader := mustNewStore(test, storage)
	loaded, err := reader.Load(context.Background())
	if err != nil {
		test.Fatalf("load failed: %v", err)
	}
	if len(loaded) != len(created) {
		test.Fatalf("expected %d records, got %d", len(created), len(loaded))
	}
	for index := range created {
		if loaded[index] != created[index] {
			test.Fatalf("record %d: expected %+v, got %+v", index, created[index], loaded[index])
		}
	}
}

func TestLoadSkipsMalformedAndUnreadableValues(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	logger := &recorderLogger{}
	writer := mustNewStore(test, storage)
	good := mustCreate(test, writer, validDraft(test, 2))
	storage.values["coffee:broken"] = "{not json"
	storage.values["coffee:zero"] = `{"id":"zero","item":"Mocha","quantity":0,"store":"7-11","redeemMethod":"7-11","expiryDate":"2024-07-01","createdAt":"2024-06-01T00:00:00.000Z"}`
	storage.values["coffee:flaky"] = "{}"
	storage.getErrors["coffee:flaky"] = errStorageFailure
	storage.values["other:ignored"] = mustEncode(test, good)

	reader := mustNewStore(test, storage, WithOperationLogger(logger))
	loaded, err := reader.Load(context.Background())
	if err != nil {
		test.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0] != good {
		test.Fatalf("expected only the well-formed record, got %+v", loaded)
	}

	skipped := map[string]error{}
	for _, entry := range logger.entries {
		if entry.Status == StatusSkipped {
			skipped[entry.Key] = entry.Error
		}
	}
	if len(skipped) != 3 {
		test.Fatalf("expected three skipped entries, got %v", skipped)
	}
	if !errors.Is(skipped["coffee:broken"], ErrDeserialization) || !errors.Is(skipped["coffee:zero"], ErrDeserialization) {
		test.Fatalf("expected deserialization errors, got %v", skipped)
	}
	if !errors.Is(skipped["coffee:flaky"], ErrStorage) {
		test.Fatalf("expected storage error for unreadable key, got %v", skipped["coffee:flaky"])
	}
}

func TestLoadAcceptsOffsetlessCreatedAt(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	storage.values["coffee:1718011815123"] = `{"id":"1718011815123","item":"Latte","quantity":2,"store":"7-11","redeemMethod":"7-11","expiryDate":"2024-06-17","createdAt":"2024-06-10T09:30:15.123456"}`
	store := mustNewStore(test, storage)

	loaded, err := store.Load(context.Background())
	if err != nil {
		test.Fatalf("load failed: %v", err)
	}
	want := time.Date(2024, time.June, 10, 9, 30, 15, 123_456_000, time.UTC)
	if len(loaded) != 1 || !loaded[0].CreatedAt.Equal(want) {
		test.Fatalf("expected one record created at %v, got %+v", want, loaded)
	}

	if _, err := store.Redeem(context.Background(), loaded[0].ID); err != nil {
		test.Fatalf("redeem failed: %v", err)
	}
	rewritten := storage.values["coffee:1718011815123"]
	if !strings.Contains(rewritten, `"createdAt":"2024-06-10T09:30:15.123456Z"`) || !strings.Contains(rewritten, `"quantity":1`) {
		test.Fatalf("expected rewrite to keep microseconds, got %s", rewritten)
	}
}

func TestLoadSkipsRecordsStoredUnderAnotherID(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	logger := &recorderLogger{}
	document := func(id string, quantity int) string {
		return fmt.Sprintf(`{"id":%q,"item":"Latte","quantity":%d,"store":"7-11","redeemMethod":"7-11","expiryDate":"2024-06-17","createdAt":"2024-06-01T00:00:00.000Z"}`, id, quantity)
	}
	storage.values["coffee:A"] = document("B", 2)
	storage.values["coffee:C"] = document("C", 2)
	storage.values["coffee:D"] = document("C", 5)
	store := mustNewStore(test, storage, WithOperationLogger(logger))

	loaded, err := store.Load(context.Background())
	if err != nil {
		test.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID.String() != "C" || loaded[0].Quantity != 2 {
		test.Fatalf("expected only the record stored under its own id, got %+v", loaded)
	}
	skipped := map[string]error{}
	for _, entry := range logger.entries {
		if entry.Status == StatusSkipped {
			skipped[entry.Key] = entry.Error
		}
	}
	for _, key := range []string{"coffee:A", "coffee:D"} {
		if !errors.Is(skipped[key], ErrDeserialization) || !errors.Is(skipped[key], ErrInvalidDepositID) {
			test.Fatalf("expected %s skipped as a key mismatch, got %v", key, skipped)
		}
	}

	if _, err := store.Redeem(context.Background(), mustDepositID(test, "B")); err != nil {
		test.Fatalf("redeem failed: %v", err)
	}
	if _, exists := storage.values["coffee:B"]; exists {
		test.Fatalf("redeem of a skipped record must not write a new key")
	}
	if _, err := store.Redeem(context.Background(), loaded[0].ID); err != nil {
		test.Fatalf("redeem failed: %v", err)
	}
	reloaded, err := store.Load(context.Background())
	if err != nil {
		test.Fatalf("reload failed: %v", err)
	}
	var cups int64
	for _, record := range reloaded {
		cups += record.Quantity.Int64()
	}
	if len(reloaded) != 1 || cups != 1 {
		test.Fatalf("expected one cup across one record after redeem, got %d across %d", cups, len(reloaded))
	}
}

func TestLoadReplacesPriorState(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	store := mustNewStore(test, storage)
	record := mustCreate(test, store, validDraft(test, 2))
	delete(storage.values, store.Key(record.ID))

	loaded, err := store.Load(context.Background())
	if err != nil {
		test.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 0 || len(store.Records()) != 0 {
		test.Fatalf("expected empty collection after reload, got %+v", store.Records())
	}
}

func TestLoadListFailure(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	store := mustNewStore(test, storage)
	record := mustCreate(test, store, validDraft(test, 2))
	storage.listError = errStorageFailure

	_, err := store.Load(context.Background())
	if !errors.Is(err, ErrStorage) {
		test.Fatalf("expected storage error, got %v", err)
	}
	if _, ok := store.Get(record.ID); !ok {
		test.Fatalf("expected prior collection kept after failed load")
	}
}

func TestCustomKeyPrefix(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	store := mustNewStore(test, storage, WithKeyPrefix("cups/"))
	record := mustCreate(test, store, validDraft(test, 1))

	if _, ok := storage.values["cups/"+record.ID.String()]; !ok {
		test.Fatalf("expected key under custom prefix, got %v", storage.values)
	}
}

func TestStoreLogsOperations(test *testing.T) {
	test.Parallel()
	storage := newStubStorage()
	logger := &recorderLogger{}
	store := mustNewStore(test, storage, WithOperationLogger(logger))
	record := mustCreate(test, store, validDraft(test, 2))
	if _, err := store.Redeem(context.Background(), record.ID); err != nil {
		test.Fatalf("redeem failed: %v", err)
	}
	storage.deleteError = errStorageFailure
	_ = store.Delete(context.Background(), record.ID)

	if len(logger.entries) != 3 {
		test.Fatalf("expected three log entries, got %+v", logger.entries)
	}
	expected := []struct {
		operation string
		status    string
	}{
		{operationCreate, StatusOK},
		{operationRedeem, StatusOK},
		{operationDelete, StatusError},
	}
	for index, want := range expected {
		entry := logger.entries[index]
		if entry.Operation != want.operation || entry.Status != want.status || entry.DepositID != record.ID {
			test.Fatalf("entry %d: expected %s/%s, got %+v", index, want.operation, want.status, entry)
		}
	}
	if logger.entries[1].Quantity != 1 {
		test.Fatalf("expected redeem log to carry remaining quantity 1, got %d", logger.entries[1].Quantity)
	}
}
