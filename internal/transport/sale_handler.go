package transport

import (
	"errors"
	"net/http"
	"time"

	"retail-pos/internal/domain"
	"retail-pos/internal/middleware"
	"retail-pos/internal/repository"
	"retail-pos/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CheckoutRequest represents the checkout payload: the cart
type CheckoutRequest struct {
	Items []domain.CartLine `json:"items" validate:"required,min=1,dive"`
}

// SeedRequest represents the bulk product seeding payload
type SeedRequest struct {
	Products []service.SeedProduct `json:"products" validate:"required,min=1,dive"`
}

// SeedResponse reports how many products the seed created
type SeedResponse struct {
	Created int `json:"created"`
}

// SaleItemResponse represents a single sale line with its captured price
type SaleItemResponse struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// SaleResponse represents a completed sale
type SaleResponse struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Total     float64            `json:"total"`
	Items     []SaleItemResponse `json:"items"`
	CreatedAt time.Time          `json:"created_at"`
}

// SaleHandler handles HTTP requests for checkout, sales history and seeding
type SaleHandler struct {
	checkoutService service.CheckoutService
	catalogService  service.CatalogService
	logger          *zap.Logger
}

// NewSaleHandler creates a new SaleHandler
func NewSaleHandler(checkoutService service.CheckoutService, catalogService service.CatalogService, logger *zap.Logger) *SaleHandler {
	return &SaleHandler{
		checkoutService: checkoutService,
		catalogService:  catalogService,
		logger:          logger,
	}
}

// RegisterRoutes registers sale and seed routes. Checkout is open to any
// authenticated role; seeding is admin-only through the policy table.
func (h *SaleHandler) RegisterRoutes(r chi.Router, auth func(http.Handler) http.Handler, policy *middleware.Policy) {
	r.Route("/api/sales", func(r chi.Router) {
		r.Use(auth)
		r.Use(middleware.Authorize(policy, "sales", h.logger))
		r.Get("/", h.ListSales)
		r.Post("/", h.Checkout)
	})

	r.Route("/api/seed", func(r chi.Router) {
		r.Use(auth)
		r.Use(middleware.Authorize(policy, "seed", h.logger))
		r.Post("/", h.Seed)
	})
}

// Checkout runs the sale transaction for the authenticated user's cart.
// Business failures (empty cart, unknown product, insufficient stock) are
// client-correctable and come back as 400 with a descriptive message.
func (h *SaleHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CheckoutRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sale, err := h.checkoutService.Checkout(r.Context(), userID, req.Items)
	if err != nil {
		var notFound *service.ProductNotFoundError
		var noStock *service.InsufficientStockError

		switch {
		case err == service.ErrEmptyCart, err == service.ErrInvalidQuantity:
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &notFound):
			middleware.RespondWithError(w, http.StatusBadRequest, notFound.Error())
		case errors.As(err, &noStock):
			middleware.RespondWithErrorDetails(w, http.StatusBadRequest, noStock.Error(), map[string]interface{}{
				"product_id": noStock.ProductID.String(),
				"requested":  noStock.Requested,
				"available":  noStock.Available,
			})
		default:
			h.logger.Error("Checkout failed", zap.Error(err), zap.String("user_id", userID.String()))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to complete checkout")
		}
		return
	}

	h.logger.Info("Sale completed",
		zap.String("sale_id", sale.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Float64("total", sale.Total),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, saleResponse(sale))
}

// ListSales returns all sales, newest first
func (h *SaleHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.checkoutService.ListSales(r.Context())
	if err != nil {
		h.logger.Error("Failed to list sales", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list sales")
		return
	}

	response := make([]SaleResponse, 0, len(sales))
	for _, s := range sales {
		response = append(response, saleResponse(s))
	}

	middleware.RespondWithJSON(w, http.StatusOK, response)
}

// Seed bulk-creates products with initial inventory (admin)
func (h *SaleHandler) Seed(w http.ResponseWriter, r *http.Request) {
	var req SeedRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.catalogService.Seed(r.Context(), req.Products)
	if err != nil {
		if err == service.ErrInvalidPrice || err == service.ErrInvalidStock {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, repository.ErrCategoryNotFound) {
			middleware.RespondWithError(w, http.StatusBadRequest, "category does not exist")
			return
		}

		h.logger.Error("Seed failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to seed products")
		return
	}

	h.logger.Info("Products seeded", zap.Int("created", created))
	middleware.RespondWithJSON(w, http.StatusCreated, SeedResponse{Created: created})
}

func saleResponse(s *domain.Sale) SaleResponse {
	items := make([]SaleItemResponse, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, SaleItemResponse{
			ProductID: item.ProductID.String(),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	return SaleResponse{
		ID:        s.ID.String(),
		UserID:    s.UserID.String(),
		Total:     s.Total,
		Items:     items,
		CreatedAt: s.CreatedAt,
	}
}
