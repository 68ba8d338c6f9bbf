package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"retail-pos/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrInventoryNotFound = errors.New("inventory record not found")

	// ErrStockConflict means a guarded decrement affected no row: either the
	// inventory row is gone or the remaining quantity is below the requested
	// amount. Inside a checkout transaction this is the signal that a
	// concurrent sale got there first.
	ErrStockConflict = errors.New("insufficient stock for decrement")
)

// InventoryRepository defines the interface for stock-count data access
type InventoryRepository interface {
	Upsert(ctx context.Context, productID uuid.UUID, quantity int) error
	Get(ctx context.Context, productID uuid.UUID) (*domain.Inventory, error)
	Decrement(ctx context.Context, productID uuid.UUID, quantity int) error
}

type inventoryRepository struct {
	db DBTX
}

// NewInventoryRepository creates a new instance of InventoryRepository
func NewInventoryRepository(db DBTX) InventoryRepository {
	return &inventoryRepository{db: db}
}

// Upsert creates the inventory row for a product or replaces its quantity
func (r *inventoryRepository) Upsert(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `
		INSERT INTO inventories (product_id, quantity, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, productID, quantity); err != nil {
		return fmt.Errorf("failed to upsert inventory: %w", err)
	}

	return nil
}

// Get retrieves the inventory row for a product
func (r *inventoryRepository) Get(ctx context.Context, productID uuid.UUID) (*domain.Inventory, error) {
	query := `
		SELECT product_id, quantity, updated_at
		FROM inventories
		WHERE product_id = $1
	`

	inventory := &domain.Inventory{}
	err := r.db.QueryRowContext(ctx, query, productID).Scan(
		&inventory.ProductID,
		&inventory.Quantity,
		&inventory.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInventoryNotFound
		}
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}

	return inventory, nil
}

// Decrement atomically subtracts quantity from a product's stock. The WHERE
// guard makes the decrement conditional: quantity never drops below zero,
// even under concurrent checkouts, because only one of two racing updates
// can satisfy quantity >= $2 once stock runs low.
func (r *inventoryRepository) Decrement(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `
		UPDATE inventories
		SET quantity = quantity - $2, updated_at = NOW()
		WHERE product_id = $1 AND quantity >= $2
	`

	result, err := r.db.ExecContext(ctx, query, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement inventory: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrStockConflict
	}

	return nil
}
