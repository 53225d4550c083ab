// Package postgres implements the repositories and the consistency
// coordinator on PostgreSQL through pgx.
package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/comanda/db"
	"github.com/xenking/comanda/internal/domain/consistency"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}
	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool. The schema
// is idempotent.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type txKey struct{}

// conn returns the transaction carried by ctx, or the pool.
func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

var _ consistency.Coordinator = (*Coordinator)(nil)

// Coordinator runs units of work in READ COMMITTED transactions. Operations
// that read-modify-write an order take its row lock first, which serializes
// them per order.
type Coordinator struct {
	pool *pgxpool.Pool
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(pool *pgxpool.Pool) *Coordinator {
	return &Coordinator{pool: pool}
}

func (c *Coordinator) Atomic(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return pgx.BeginTxFunc(ctx, c.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Store bundles every PostgreSQL repository over one pool.
type Store struct {
	*Coordinator
	Orders    *OrderRepository
	Sales     *SaleRepository
	Receipts  *ReceiptRepository
	Outbox    *OutboxStore
	Reports   *ReportRepository
	Menu      *MenuCatalog
	Terminals *TerminalRepository
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Coordinator: NewCoordinator(pool),
		Orders:      &OrderRepository{pool: pool},
		Sales:       &SaleRepository{pool: pool},
		Receipts:    &ReceiptRepository{pool: pool},
		Outbox:      &OutboxStore{pool: pool},
		Reports:     &ReportRepository{pool: pool},
		Menu:        &MenuCatalog{pool: pool},
		Terminals:   &TerminalRepository{pool: pool},
	}
}
