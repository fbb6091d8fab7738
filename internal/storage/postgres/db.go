// Package postgres implements storage.Transactor on top of database/sql and lib/pq.
//
// The *sql.Tx of the running transaction travels in the context; repositories grab it
// through Conn so their statements join it, and fall back to the pool otherwise.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/georgemunganga/warehouse-backend/internal/apperr"
	"github.com/georgemunganga/warehouse-backend/internal/log"
	"github.com/georgemunganga/warehouse-backend/internal/storage"
	"github.com/georgemunganga/warehouse-backend/internal/storage/postgres/migrations"
)

// Executor is the subset of *sql.DB and *sql.Tx the repositories use.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Config is the configuration of the postgres connection.
type Config struct {
	URL          string
	MaxOpenConns int
	Migrate      bool
	Logger       log.Logger
}

func (c *Config) defaults() error {
	if c.URL == "" {
		return fmt.Errorf("database url is required")
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 20
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Postgres"})
	return nil
}

// DB wraps the connection pool.
type DB struct {
	db     *sql.DB
	logger log.Logger
}

var _ storage.Transactor = (*DB)(nil)

// Open connects to postgres, checks the connection and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not ping database: %w", err)
	}

	if cfg.Migrate {
		migrator, err := migrations.NewMigrator(db, cfg.Logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("could not create migrator: %w", err)
		}
		if err := migrator.Up(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	cfg.Logger.Infof("Connected to postgres")
	return &DB{db: db, logger: cfg.Logger}, nil
}

// New wraps an already opened pool.
func New(db *sql.DB) *DB {
	return &DB{db: db, logger: log.Noop}
}

// Close closes the pool.
func (d *DB) Close() error { return d.db.Close() }

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

type txKey struct{}

// WithinTx runs fn inside a transaction, joining the one already present in ctx.
func (d *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	ctx, runHooks := storage.WithCommitHooks(ctx)
	ctx = context.WithValue(ctx, txKey{}, tx)
	if err := fn(ctx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	runHooks()
	return nil
}

// Conn returns the transaction in ctx, or the pool when there is none.
func (d *DB) Conn(ctx context.Context) Executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return d.db
}

// ── errors ──

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// MapError translates driver errors into the application error kinds. notFound is returned
// in place of sql.ErrNoRows.
func MapError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeUniqueViolation:
			return fmt.Errorf("%s already exists: %w", pqErr.Constraint, apperr.ErrInvalidInput)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s references a missing row: %w", pqErr.Constraint, apperr.ErrInvalidInput)
		case codeCheckViolation:
			return fmt.Errorf("%s check failed: %w", pqErr.Constraint, apperr.ErrInvalidInput)
		}
	}
	return err
}
