package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Repositories run against either, so the same code serves single-statement
// calls and multi-statement transactions.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repos bundles every repository bound to one transaction.
type Repos struct {
	Users       UserRepository
	Categories  CategoryRepository
	Products    ProductRepository
	Inventories InventoryRepository
	Sales       SaleRepository
}

// NewRepos constructs the repository set over the given handle.
func NewRepos(db DBTX) Repos {
	return Repos{
		Users:       NewUserRepository(db),
		Categories:  NewCategoryRepository(db),
		Products:    NewProductRepository(db),
		Inventories: NewInventoryRepository(db),
		Sales:       NewSaleRepository(db),
	}
}

// TxRunner executes a callback inside a single database transaction.
// The callback receives repositories bound to the transaction; an error
// from the callback (or the commit) rolls back everything.
type TxRunner struct {
	db *sql.DB
}

// NewTxRunner creates a runner over the connection pool.
func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

// Run begins a transaction, runs fn with tx-bound repositories and commits,
// rolling back if fn or the commit fails.
func (r *TxRunner) Run(ctx context.Context, fn func(Repos) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(NewRepos(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
