package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retail-pos/internal/domain"
	"retail-pos/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidQuantity = errors.New("cart line quantity must be greater than zero")
)

// ProductNotFoundError reports a cart line whose product does not exist or
// carries no inventory record.
type ProductNotFoundError struct {
	ProductID uuid.UUID
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found or has no inventory", e.ProductID)
}

// InsufficientStockError reports a cart line that asks for more units than
// the product has in stock.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// TxRunner executes a callback inside one database transaction with
// repositories bound to it. Implemented by repository.TxRunner.
type TxRunner interface {
	Run(ctx context.Context, fn func(repository.Repos) error) error
}

// CheckoutService converts carts into persisted sales. Checkout is the only
// operation in the system that touches multiple rows at once; everything it
// does happens inside a single transaction or not at all.
type CheckoutService interface {
	Checkout(ctx context.Context, userID uuid.UUID, cart []domain.CartLine) (*domain.Sale, error)
	ListSales(ctx context.Context) ([]*domain.Sale, error)
}

type checkoutService struct {
	tx    TxRunner
	sales repository.SaleRepository
}

// NewCheckoutService creates a new instance of CheckoutService
func NewCheckoutService(tx TxRunner, sales repository.SaleRepository) CheckoutService {
	return &checkoutService{tx: tx, sales: sales}
}

// Checkout validates the cart, computes the total with prices captured at
// call time, persists the sale with its items and decrements inventory —
// all in one transaction.
//
// Overselling is prevented with a conditional decrement: the inventory
// update only matches rows where quantity >= requested, and a zero
// rows-affected result fails the whole transaction. Two concurrent
// checkouts on the same product cannot both drain the same units, because
// the second update either blocks on the first's row lock and then sees
// the reduced quantity, or matches nothing.
func (s *checkoutService) Checkout(ctx context.Context, userID uuid.UUID, cart []domain.CartLine) (*domain.Sale, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}
	for _, line := range cart {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	var sale *domain.Sale

	err := s.tx.Run(ctx, func(repos repository.Repos) error {
		// Batch-load every product in the cart with its inventory.
		ids := make([]uuid.UUID, len(cart))
		for i, line := range cart {
			ids[i] = line.ProductID
		}

		products, err := repos.Products.FindByIDs(ctx, ids)
		if err != nil {
			return err
		}

		byID := make(map[uuid.UUID]*domain.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		var total float64
		items := make([]domain.SaleItem, 0, len(cart))
		saleID := uuid.New()

		for _, line := range cart {
			product, ok := byID[line.ProductID]
			if !ok || product.Inventory == nil {
				return &ProductNotFoundError{ProductID: line.ProductID}
			}
			if product.Inventory.Quantity < line.Quantity {
				return &InsufficientStockError{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: product.Inventory.Quantity,
				}
			}

			total += product.Price * float64(line.Quantity)
			items = append(items, domain.SaleItem{
				ID:        uuid.New(),
				SaleID:    saleID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				// Capture the price in effect now, not a reference to the
				// product's current price.
				UnitPrice: product.Price,
			})
		}

		sale = &domain.Sale{
			ID:        saleID,
			UserID:    userID,
			Total:     total,
			Items:     items,
			CreatedAt: time.Now(),
		}

		if err := repos.Sales.Create(ctx, sale); err != nil {
			return err
		}

		for _, line := range cart {
			if err := repos.Inventories.Decrement(ctx, line.ProductID, line.Quantity); err != nil {
				if err == repository.ErrStockConflict {
					// A concurrent checkout took the stock between our read
					// and this decrement. Surface it like the pre-check would
					// have; the transaction rolls back entirely.
					available := 0
					if inv, invErr := repos.Inventories.Get(ctx, line.ProductID); invErr == nil {
						available = inv.Quantity
					}
					return &InsufficientStockError{
						ProductID: line.ProductID,
						Requested: line.Quantity,
						Available: available,
					}
				}
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return sale, nil
}

// ListSales retrieves the sale history, newest first
func (s *checkoutService) ListSales(ctx context.Context) ([]*domain.Sale, error) {
	sales, err := s.sales.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return sales, nil
}
