package pgstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/cupledger/pkg/deposit"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore = "store"
	errorSubjectKey     = "key"
	errorSubjectSchema  = "schema"
	errorCodeCreate     = "create"
	errorCodeDelete     = "delete"
	errorCodeGet        = "get"
	errorCodeList       = "list"
	errorCodeScan       = "scan"
	errorCodeSet        = "set"

	sqlCreateTable = `
		create table if not exists key_values (
			storage_key text primary key,
			value text not null,
			created_at timestamptz not null default now(),
			updated_at timestamptz not null default now()
		)
	`

	sqlListKeys = `
		select storage_key from key_values
		where left(storage_key, char_length($1)) = $1
		order by storage_key asc
	`

	sqlGetValue = `
		select value from key_values where storage_key = $1
	`

	sqlUpsertValue = `
		insert into key_values(storage_key, value) values ($1, $2)
		on conflict (storage_key) do update set value = excluded.value, updated_at = now()
	`

	sqlDeleteKey = `
		delete from key_values where storage_key = $1
	`
)

// Store implements deposit.Storage using a pgx connection pool (autocommit).
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the key_values table when it does not exist.
func (store *Store) EnsureSchema(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, sqlCreateTable); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := store.pool.Query(ctx, sqlListKeys, prefix)
	if err != nil {
		return nil, wrapStoreError(errorSubjectKey, errorCodeList, err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapStoreError(errorSubjectKey, errorCodeScan, err)
	}
	return keys, nil
}

func (store *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := store.pool.QueryRow(ctx, sqlGetValue, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, wrapStoreError(errorSubjectKey, errorCodeGet, err)
	}
	return value, true, nil
}

func (store *Store) Set(ctx context.Context, key string, value string) error {
	if _, err := store.pool.Exec(ctx, sqlUpsertValue, key, value); err != nil {
		return wrapStoreError(errorSubjectKey, errorCodeSet, err)
	}
	return nil
}

// Delete is idempotent: a missing key affects zero rows and succeeds.
func (store *Store) Delete(ctx context.Context, key string) error {
	if _, err := store.pool.Exec(ctx, sqlDeleteKey, key); err != nil {
		return wrapStoreError(errorSubjectKey, errorCodeDelete, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return deposit.WrapError(errorOperationStore, subject, code, err)
}
