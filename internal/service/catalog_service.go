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
	ErrInvalidDeletePolicy = errors.New("invalid category delete policy")
	ErrInvalidPrice        = errors.New("product price must not be negative")
	ErrInvalidStock        = errors.New("initial stock must not be negative")
)

// DeletePolicy decides what happens when a category with referenced
// products is deleted. Stores differ on what they want here, so it is
// explicit configuration rather than a fixed rule.
type DeletePolicy string

const (
	// DeleteRestrict rejects deletion while products reference the category.
	DeleteRestrict DeletePolicy = "restrict"
	// DeleteCascade removes the referencing products along with the category.
	DeleteCascade DeletePolicy = "cascade"
)

// ParseDeletePolicy validates a configured policy string.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(s) {
	case DeleteRestrict:
		return DeleteRestrict, nil
	case DeleteCascade:
		return DeleteCascade, nil
	}
	return "", ErrInvalidDeletePolicy
}

// SeedProduct is one entry of a bulk product load.
type SeedProduct struct {
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	Price       float64   `json:"price" validate:"gte=0"`
	CategoryID  uuid.UUID `json:"category_id" validate:"required"`
	Quantity    int       `json:"quantity" validate:"gte=0"`
}

// CatalogService covers category and product management. Single-row reads
// and writes go straight to the repositories; anything that touches a
// product together with its inventory runs through the transaction runner.
type CatalogService interface {
	CreateCategory(ctx context.Context, name string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]*domain.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error

	CreateProduct(ctx context.Context, product *domain.Product, initialQuantity int) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product *domain.Product, quantity *int) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)

	Seed(ctx context.Context, products []SeedProduct) (int, error)
}

type catalogService struct {
	repos        repository.Repos
	tx           TxRunner
	deletePolicy DeletePolicy
}

// NewCatalogService creates a new instance of CatalogService
func NewCatalogService(repos repository.Repos, tx TxRunner, deletePolicy DeletePolicy) CatalogService {
	return &catalogService{repos: repos, tx: tx, deletePolicy: deletePolicy}
}

// CreateCategory creates a category with a unique name
func (s *catalogService) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	category := &domain.Category{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now(),
	}

	if err := s.repos.Categories.Create(ctx, category); err != nil {
		return nil, err
	}

	return category, nil
}

// ListCategories retrieves all categories
func (s *catalogService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	return s.repos.Categories.List(ctx)
}

// DeleteCategory removes a category according to the configured policy.
// Under restrict the delete fails with ErrCategoryInUse while products
// reference it; under cascade the referencing products (and their
// inventories and the category) go in one transaction.
func (s *catalogService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	if s.deletePolicy == DeleteRestrict {
		return s.repos.Categories.Delete(ctx, id)
	}

	return s.tx.Run(ctx, func(repos repository.Repos) error {
		if err := repos.Products.DeleteByCategory(ctx, id); err != nil {
			return err
		}
		return repos.Categories.Delete(ctx, id)
	})
}

// CreateProduct creates a product and its inventory row in one transaction
func (s *catalogService) CreateProduct(ctx context.Context, product *domain.Product, initialQuantity int) (*domain.Product, error) {
	if product.Price < 0 {
		return nil, ErrInvalidPrice
	}
	if initialQuantity < 0 {
		return nil, ErrInvalidStock
	}

	now := time.Now()
	product.ID = uuid.New()
	product.CreatedAt = now
	product.UpdatedAt = now

	err := s.tx.Run(ctx, func(repos repository.Repos) error {
		if err := repos.Products.Create(ctx, product); err != nil {
			return err
		}
		return repos.Inventories.Upsert(ctx, product.ID, initialQuantity)
	})
	if err != nil {
		return nil, err
	}

	return s.GetProduct(ctx, product.ID)
}

// UpdateProduct updates a product and, when a quantity is given, upserts
// the inventory row with it in the same transaction
func (s *catalogService) UpdateProduct(ctx context.Context, product *domain.Product, quantity *int) (*domain.Product, error) {
	if product.Price < 0 {
		return nil, ErrInvalidPrice
	}
	if quantity != nil && *quantity < 0 {
		return nil, ErrInvalidStock
	}

	product.UpdatedAt = time.Now()

	err := s.tx.Run(ctx, func(repos repository.Repos) error {
		if err := repos.Products.Update(ctx, product); err != nil {
			return err
		}
		if quantity != nil {
			return repos.Inventories.Upsert(ctx, product.ID, *quantity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetProduct(ctx, product.ID)
}

// DeleteProduct removes a product and its inventory
func (s *catalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return s.repos.Products.Delete(ctx, id)
}

// GetProduct retrieves a product with category and inventory
func (s *catalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.repos.Products.FindByID(ctx, id)
}

// ListProducts retrieves all products with category and inventory
func (s *catalogService) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	return s.repos.Products.List(ctx)
}

// Seed bulk-creates products with initial inventory. All rows are created
// in one transaction; one bad entry rolls back the whole batch.
func (s *catalogService) Seed(ctx context.Context, products []SeedProduct) (int, error) {
	created := 0

	err := s.tx.Run(ctx, func(repos repository.Repos) error {
		for _, entry := range products {
			if entry.Price < 0 {
				return ErrInvalidPrice
			}
			if entry.Quantity < 0 {
				return ErrInvalidStock
			}

			now := time.Now()
			product := &domain.Product{
				ID:          uuid.New(),
				Name:        entry.Name,
				Description: entry.Description,
				Price:       entry.Price,
				CategoryID:  entry.CategoryID,
				CreatedAt:   now,
				UpdatedAt:   now,
			}

			if err := repos.Products.Create(ctx, product); err != nil {
				return fmt.Errorf("failed to seed product %q: %w", entry.Name, err)
			}
			if err := repos.Inventories.Upsert(ctx, product.ID, entry.Quantity); err != nil {
				return fmt.Errorf("failed to seed inventory for %q: %w", entry.Name, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return created, nil
}
