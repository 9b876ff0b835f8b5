// Package storage opens a deposit.Storage backend from a connection URL.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/cupledger/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/cupledger/internal/store/grpcstore"
	"github.com/MarkoPoloResearchLab/cupledger/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/cupledger/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/cupledger/internal/store/redisstore"
	"github.com/MarkoPoloResearchLab/cupledger/pkg/deposit"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Driver names a storage backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverPgx      Driver = "pgx"
	DriverRedis    Driver = "redis"
	DriverGRPC     Driver = "grpc"

	defaultSQLiteFile = "cupledger.db"
)

// Target is a parsed storage URL.
type Target struct {
	Driver Driver
	// DSN is the connection string handed to the driver: a database URL,
	// a SQLite file path, a Redis URL or a gRPC address.
	DSN string
	// Insecure reports a plaintext gRPC connection.
	Insecure bool
}

// Open resolves rawURL, connects, prepares the schema where the backend
// needs one and returns the storage with a cleanup func.
func Open(ctx context.Context, rawURL string, log *zap.Logger) (deposit.Storage, func() error, error) {
	if log == nil {
		log = zap.NewNop()
	}
	target, err := Resolve(rawURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("opening storage", zap.String("driver", string(target.Driver)))

	switch target.Driver {
	case DriverMemory:
		return memstore.New(), noopCleanup, nil
	case DriverSQLite, DriverPostgres:
		return openGorm(ctx, target)
	case DriverPgx:
		pool, err := pgxpool.New(ctx, target.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("pgx pool: %w", err)
		}
		store := pgstore.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, func() error { pool.Close(); return nil }, nil
	case DriverRedis:
		store, err := redisstore.Open(ctx, redisstore.Options{URL: target.DSN})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case DriverGRPC:
		store, closeConn, err := grpcstore.Dial(ctx, target.DSN, target.Insecure)
		if err != nil {
			return nil, nil, err
		}
		return store, closeConn, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", target.Driver)
	}
}

// Resolve maps a storage URL onto a backend.
func Resolve(rawURL string) (Target, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return Target{}, fmt.Errorf("storage url is required")
	}
	switch {
	case strings.HasPrefix(trimmed, "memory://"):
		return Target{Driver: DriverMemory}, nil
	case strings.HasPrefix(trimmed, "pgx+postgres://") || strings.HasPrefix(trimmed, "pgx+postgresql://"):
		return Target{Driver: DriverPgx, DSN: strings.TrimPrefix(trimmed, "pgx+")}, nil
	case strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://"):
		return Target{Driver: DriverPostgres, DSN: trimmed}, nil
	case strings.HasPrefix(trimmed, "redis://") || strings.HasPrefix(trimmed, "rediss://"):
		return Target{Driver: DriverRedis, DSN: trimmed}, nil
	case strings.HasPrefix(trimmed, "grpc://") || strings.HasPrefix(trimmed, "grpcs://"):
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return Target{}, fmt.Errorf("parse grpc url: %w", err)
		}
		if parsed.Host == "" {
			return Target{}, fmt.Errorf("grpc url %q has no host", trimmed)
		}
		return Target{Driver: DriverGRPC, DSN: parsed.Host, Insecure: parsed.Scheme == "grpc"}, nil
	case strings.HasPrefix(trimmed, "sqlite://"):
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return Target{}, fmt.Errorf("parse sqlite url: %w", err)
		}
		path := parsed.Path
		if path == "" {
			path = parsed.Host
		}
		if path == "" || path == "/" {
			path = defaultSQLiteFile
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return Target{Driver: DriverSQLite, DSN: sqlitePath}, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(trimmed)
	return Target{Driver: DriverSQLite, DSN: sqlitePath}, err
}

func openGorm(ctx context.Context, target Target) (deposit.Storage, func() error, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var (
		db  *gorm.DB
		err error
	)
	if target.Driver == DriverPostgres {
		db, err = gorm.Open(postgres.Open(target.DSN), cfg)
	} else {
		db, err = gorm.Open(sqlite.Open(target.DSN), cfg)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("database open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("database open: %w", err)
	}
	cleanup := func() error { return sqlDB.Close() }
	store := gormstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("auto migrate: %w", err)
	}
	return store, cleanup, nil
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func noopCleanup() error { return nil }
