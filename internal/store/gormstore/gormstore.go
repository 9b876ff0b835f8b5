package gormstore

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/MarkoPoloResearchLab/cupledger/pkg/deposit"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	errorOperationStore = "store"
	errorSubjectKey     = "key"
	errorSubjectSchema  = "schema"
	errorCodeDelete     = "delete"
	errorCodeGet        = "get"
	errorCodeList       = "list"
	errorCodeMigrate    = "migrate"
	errorCodeSet        = "set"
)

// Store implements deposit.Storage using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the key_values table.
func (store *Store) Migrate(ctx context.Context) error {
	if err := store.db.WithContext(ctx).AutoMigrate(&KeyValue{}); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

// List returns keys starting with prefix, compared case-sensitively.
func (store *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := store.db.WithContext(ctx).
		Model(&KeyValue{}).
		Where("substr(storage_key, 1, CAST(? AS INTEGER)) = ?", utf8.RuneCountInString(prefix), prefix).
		Order("storage_key ASC").
		Pluck("storage_key", &keys).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectKey, errorCodeList, err)
	}
	return keys, nil
}

func (store *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var row KeyValue
	err := store.db.WithContext(ctx).
		Where("storage_key = ?", key).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, wrapStoreError(errorSubjectKey, errorCodeGet, err)
	}
	return row.Value, true, nil
}

func (store *Store) Set(ctx context.Context, key string, value string) error {
	if key == "" {
		return wrapStoreError(errorSubjectKey, errorCodeSet, fmt.Errorf("empty key"))
	}
	row := KeyValue{Key: key, Value: value}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "storage_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectKey, errorCodeSet, err)
	}
	return nil
}

// Delete is idempotent: removing a missing key succeeds.
func (store *Store) Delete(ctx context.Context, key string) error {
	err := store.db.WithContext(ctx).
		Where("storage_key = ?", key).
		Delete(&KeyValue{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectKey, errorCodeDelete, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return deposit.WrapError(errorOperationStore, subject, code, err)
}
