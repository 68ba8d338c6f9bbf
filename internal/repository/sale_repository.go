package repository

import (
	"context"
	"fmt"
	"strings"

	"retail-pos/internal/domain"

	"github.com/google/uuid"
)

// SaleRepository defines the interface for sale data access. Sales are
// append-only: there is no update or delete.
type SaleRepository interface {
	Create(ctx context.Context, sale *domain.Sale) error
	List(ctx context.Context) ([]*domain.Sale, error)
}

type saleRepository struct {
	db DBTX
}

// NewSaleRepository creates a new instance of SaleRepository
func NewSaleRepository(db DBTX) SaleRepository {
	return &saleRepository{db: db}
}

// Create inserts a sale and all of its items. The items go in as one
// batched multi-row insert.
func (r *saleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	saleQuery := `
		INSERT INTO sales (id, user_id, total, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, saleQuery, sale.ID, sale.UserID, sale.Total, sale.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sale: %w", err)
	}

	if len(sale.Items) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(sale.Items))
	args := make([]any, 0, len(sale.Items)*5)
	for i, item := range sale.Items {
		base := i * 5
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, item.ID, sale.ID, item.ProductID, item.Quantity, item.UnitPrice)
	}

	itemsQuery := `
		INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price)
		VALUES ` + strings.Join(placeholders, ", ")

	if _, err := r.db.ExecContext(ctx, itemsQuery, args...); err != nil {
		return fmt.Errorf("failed to create sale items: %w", err)
	}

	return nil
}

// List retrieves all sales with their items, newest first
func (r *saleRepository) List(ctx context.Context) ([]*domain.Sale, error) {
	salesQuery := `
		SELECT id, user_id, total, created_at
		FROM sales
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, salesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer rows.Close()

	sales := []*domain.Sale{}
	byID := map[uuid.UUID]*domain.Sale{}
	for rows.Next() {
		sale := &domain.Sale{Items: []domain.SaleItem{}}
		if err := rows.Scan(&sale.ID, &sale.UserID, &sale.Total, &sale.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, sale)
		byID[sale.ID] = sale
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales: %w", err)
	}

	if len(sales) == 0 {
		return sales, nil
	}

	itemsQuery := `
		SELECT si.id, si.sale_id, si.product_id, si.quantity, si.unit_price
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		ORDER BY s.created_at DESC, si.id
	`

	itemRows, err := r.db.QueryContext(ctx, itemsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list sale items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		item := domain.SaleItem{}
		if err := itemRows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan sale item: %w", err)
		}
		if sale, ok := byID[item.SaleID]; ok {
			sale.Items = append(sale.Items, item)
		}
	}
	if err = itemRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sale items: %w", err)
	}

	return sales, nil
}
