package domain

import (
	"time"

	"github.com/google/uuid"
)

// Category groups products. Names are unique.
type Category struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Product represents a catalog item. Every product carries an inventory
// row; the Inventory pointer is populated by reads that join it.
type Product struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	Price       float64    `json:"price" db:"price"`
	CategoryID  uuid.UUID  `json:"category_id" db:"category_id"`
	Category    *Category  `json:"category,omitempty"`
	Inventory   *Inventory `json:"inventory,omitempty"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Inventory is the stock count attached to a product, one row per product.
// Quantity must never go negative; the database enforces this with a CHECK
// constraint and sales decrement it only through a guarded update.
type Inventory struct {
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
