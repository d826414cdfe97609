package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Backend string // file | sqlite | postgres | memory
	Path    string // directory for file, database file for sqlite
	DSN     string // postgres only

	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	BusyTimeout      time.Duration // sqlite
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("opening report store", "backend", cfg.Backend, "path", cfg.Path)
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryBackend(), nil
	case BackendFile, "":
		return NewFileBackend(cfg.Path, logger)
	case BackendSQLite:
		db, err := OpenSQLite(ctx, cfg.Path, cfg.BusyTimeout)
		if err != nil {
			logger.Error("failed to open sqlite", "path", cfg.Path, "error", err)
			return nil, err
		}
		return NewSQLBackend(ctx, entsql.OpenDB(dialect.SQLite, db), nil, logger)
	case BackendPostgres:
		pool, err := OpenPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		drv := entsql.OpenDB(dialect.Postgres, stdlib.OpenDBFromPool(pool))
		b, err := NewSQLBackend(ctx, drv, pool.Close, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// OpenSQLite opens path with modernc's driver. Pragmas travel in the DSN so
// every pooled connection gets them. ":memory:" pins the pool to one
// connection so every query sees the same database.
func OpenSQLite(ctx context.Context, path string, busy time.Duration) (*sql.DB, error) {
	if busy <= 0 {
		busy = 10 * time.Second
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
			path, busy.Milliseconds())
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return db, nil
}

// OpenPostgres creates a pgx pool from cfg.DSN.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database url", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "blood-report-parser"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	logger.Info("successfully connected to database")
	return pool, nil
}

// HealthCheck pings the backend within timeout.
func HealthCheck(ctx context.Context, b Backend, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	logger.Debug("pinging report store")
	if err := b.Ping(ctx); err != nil {
		logger.Error("report store ping failed", "error", err)
		return err
	}
	logger.Debug("report store ping successful")
	return nil
}
