package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool opens a pgx connection pool and verifies connectivity
func NewPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PgTransactor runs units of work in READ COMMITTED transactions and re-runs
// them on serialization failures, deadlocks and ErrConflict.
type PgTransactor struct {
	pool        *pgxpool.Pool
	maxAttempts uint
	onRetry     func()
	logger      *slog.Logger
}

// PgOption configures a PgTransactor
type PgOption func(*PgTransactor)

// WithMaxAttempts bounds how many times one unit of work may run
func WithMaxAttempts(n uint) PgOption {
	return func(t *PgTransactor) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

// WithRetryHook is called once per re-run
func WithRetryHook(fn func()) PgOption {
	return func(t *PgTransactor) {
		t.onRetry = fn
	}
}

// WithLogger sets the logger used to report retries
func WithLogger(logger *slog.Logger) PgOption {
	return func(t *PgTransactor) {
		t.logger = logger
	}
}

// NewPgTransactor creates a Transactor backed by pool
func NewPgTransactor(pool *pgxpool.Pool, opts ...PgOption) *PgTransactor {
	t := &PgTransactor{
		pool:        pool,
		maxAttempts: 5,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stores returns repositories that run directly against the pool, outside
// any transaction. Used for single-statement reads and admin commands.
func (t *PgTransactor) Stores() Stores {
	return pgStores(t.pool)
}

// Ping checks the database is reachable
func (t *PgTransactor) Ping(ctx context.Context) error {
	return t.pool.Ping(ctx)
}

// RunInTx implements Transactor
func (t *PgTransactor) RunInTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 10 * time.Millisecond
	expBackoff.MaxInterval = 250 * time.Millisecond

	operation := func() (struct{}, error) {
		err := pgx.BeginTxFunc(ctx, t.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
			return fn(ctx, pgStores(tx))
		})
		if err != nil && !isRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(t.maxAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			t.logger.Debug("retrying unit of work", "error", err, "backoff", d)
			if t.onRetry != nil {
				t.onRetry()
			}
		}),
	)
	if err != nil && isRetryable(err) && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

func pgStores(q querier) Stores {
	return Stores{
		Clients: &pgClientRepository{q: q},
		Users:   &pgUserRepository{q: q},
		Codes:   &pgCodeRepository{q: q},
		Tokens:  &pgTokenRepository{q: q},
	}
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
