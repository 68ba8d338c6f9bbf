package domain

import (
	"time"

	"github.com/google/uuid"
)

// CartLine is one client-submitted (product, quantity) pair of a checkout.
type CartLine struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// Sale is an append-only receipt. Total equals the sum of its item line
// totals; neither the sale nor its items are ever updated after creation.
type Sale struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	Total     float64    `json:"total" db:"total"`
	Items     []SaleItem `json:"items"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// SaleItem records one sold line. UnitPrice is the product price at the
// moment of sale, deliberately decoupled from the product's current price.
type SaleItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	SaleID    uuid.UUID `json:"sale_id" db:"sale_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	UnitPrice float64   `json:"unit_price" db:"unit_price"`
}
