package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/cupledger/pkg/deposit"
	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxRetries  = 3
	defaultPoolSize    = 10
	defaultPoolTimeout = 30 * time.Second
	defaultIOTimeout   = 5 * time.Second
	scanBatchSize      = 100

	errorOperationStore = "store"
	errorSubjectKey     = "key"
	errorSubjectClient  = "client"
	errorCodeConnect    = "connect"
	errorCodeDelete     = "delete"
	errorCodeGet        = "get"
	errorCodeList       = "list"
	errorCodeSet        = "set"
)

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// Options configures a Redis-backed Store.
type Options struct {
	URL         string
	MaxRetries  int
	PoolSize    int
	PoolTimeout time.Duration
}

// Store implements deposit.Storage using Redis strings.
type Store struct {
	client redis.UniversalClient
}

// New wraps an existing client.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Open parses a redis:// URL, connects and verifies the connection with PING.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = defaultPoolSize
	}
	if opts.PoolTimeout == 0 {
		opts.PoolTimeout = defaultPoolTimeout
	}
	parsed, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, wrapStoreError(errorSubjectClient, errorCodeConnect, fmt.Errorf("invalid redis url: %w", err))
	}
	parsed.MaxRetries = opts.MaxRetries
	parsed.PoolSize = opts.PoolSize
	parsed.PoolTimeout = opts.PoolTimeout
	parsed.ReadTimeout = defaultIOTimeout
	parsed.WriteTimeout = defaultIOTimeout

	client := redis.NewClient(parsed)
	pingCtx, cancel := context.WithTimeout(ctx, defaultIOTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, wrapStoreError(errorSubjectClient, errorCodeConnect, err)
	}
	return New(client), nil
}

// Close releases the underlying client.
func (store *Store) Close() error {
	return store.client.Close()
}

// List walks the keyspace with SCAN; the prefix is matched literally.
func (store *Store) List(ctx context.Context, prefix string) ([]string, error) {
	match := globEscaper.Replace(prefix) + "*"
	seen := map[string]struct{}{}
	var cursor uint64
	for {
		batch, next, err := store.client.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return nil, wrapStoreError(errorSubjectKey, errorCodeList, err)
		}
		for _, key := range batch {
			seen[key] = struct{}{}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (store *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := store.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapStoreError(errorSubjectKey, errorCodeGet, err)
	}
	return value, true, nil
}

func (store *Store) Set(ctx context.Context, key string, value string) error {
	if err := store.client.Set(ctx, key, value, 0).Err(); err != nil {
		return wrapStoreError(errorSubjectKey, errorCodeSet, err)
	}
	return nil
}

func (store *Store) Delete(ctx context.Context, key string) error {
	if err := store.client.Del(ctx, key).Err(); err != nil {
		return wrapStoreError(errorSubjectKey, errorCodeDelete, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return deposit.WrapError(errorOperationStore, subject, code, err)
}
