// Package db provides PostgreSQL-backed repository implementations for the
// subscription service. All repositories accept a DBTX interface that is
// satisfied by both *pgxpool.Pool (for normal queries) and pgx.Tx (for
// transactional execution), enabling clean transaction support.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"lexquota/internal/config"
	"lexquota/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPool creates a pgx connection pool from the database configuration and
// verifies connectivity with a ping before returning.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// Runner implements types.TxRunner on top of a pgx pool. Each RunTx call
// opens one transaction, exposes repositories bound to it, and commits or
// rolls back depending on the callback's outcome.
type Runner struct {
	pool *pgxpool.Pool
}

// NewRunner creates a Runner backed by the given pool.
func NewRunner(pool *pgxpool.Pool) *Runner {
	return &Runner{pool: pool}
}

// RunTx runs fn inside a single database transaction. The rollback in the
// deferred path also covers panics, so no exit path can leak an open
// transaction.
func (r *Runner) RunTx(ctx context.Context, fn func(ctx context.Context, s types.Stores) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, newTxStores(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}

// txStores bundles the repositories bound to one transaction.
type txStores struct {
	plans *PlanRepo
	subs  *SubscriptionRepo
	usage *UsageRepo
}

func newTxStores(tx DBTX) *txStores {
	return &txStores{
		plans: NewPlanRepo(tx),
		subs:  NewSubscriptionRepo(tx),
		usage: NewUsageRepo(tx),
	}
}

func (s *txStores) Plans() types.PlanStore                 { return s.plans }
func (s *txStores) Subscriptions() types.SubscriptionStore { return s.subs }
func (s *txStores) Usage() types.UsageStore                { return s.usage }

// Compile-time interface assertions.
var (
	_ types.TxRunner = (*Runner)(nil)
	_ types.Stores   = (*txStores)(nil)
)
