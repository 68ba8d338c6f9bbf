package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"retail-pos/internal/domain"
	"retail-pos/internal/middleware"
	"retail-pos/internal/repository"
	"retail-pos/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// In-memory repositories backing a full router, so handler tests cover the
// whole request path: auth middleware, policy table, handler, service.

type memStore struct {
	mu         sync.Mutex
	users      map[string]*domain.User
	tokens     map[string]*domain.RefreshToken
	categories map[uuid.UUID]*domain.Category
	products   map[uuid.UUID]*domain.Product
	stock      map[uuid.UUID]int
	sales      []*domain.Sale
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[string]*domain.User),
		tokens:     make(map[string]*domain.RefreshToken),
		categories: make(map[uuid.UUID]*domain.Category),
		products:   make(map[uuid.UUID]*domain.Product),
		stock:      make(map[uuid.UUID]int),
	}
}

type memUserRepository struct{ store *memStore }

func (m *memUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.store.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.store.users[user.Email] = user
	return nil
}

func (m *memUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, exists := m.store.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *memUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.store.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	users := make([]*domain.User, 0, len(m.store.users))
	for _, user := range m.store.users {
		users = append(users, user)
	}
	return users, nil
}

func (m *memUserRepository) UpdateRole(ctx context.Context, id uuid.UUID, role domain.Role) error {
	for _, user := range m.store.users {
		if user.ID == id {
			user.Role = role
			return nil
		}
	}
	return repository.ErrUserNotFound
}

type memRefreshTokenRepository struct{ store *memStore }

func (m *memRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.store.tokens[token.Token] = token
	return nil
}

func (m *memRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.store.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *memRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	refreshToken, exists := m.store.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

type memCategoryRepository struct{ store *memStore }

func (m *memCategoryRepository) Create(ctx context.Context, category *domain.Category) error {
	for _, c := range m.store.categories {
		if c.Name == category.Name {
			return repository.ErrCategoryAlreadyExists
		}
	}
	m.store.categories[category.ID] = category
	return nil
}

func (m *memCategoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	categories := make([]*domain.Category, 0, len(m.store.categories))
	for _, c := range m.store.categories {
		categories = append(categories, c)
	}
	return categories, nil
}

func (m *memCategoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	c, ok := m.store.categories[id]
	if !ok {
		return nil, repository.ErrCategoryNotFound
	}
	return c, nil
}

func (m *memCategoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.store.categories[id]; !ok {
		return repository.ErrCategoryNotFound
	}
	for _, p := range m.store.products {
		if p.CategoryID == id {
			return repository.ErrCategoryInUse
		}
	}
	delete(m.store.categories, id)
	return nil
}

func (m *memCategoryRepository) CountProducts(ctx context.Context, id uuid.UUID) (int, error) {
	count := 0
	for _, p := range m.store.products {
		if p.CategoryID == id {
			count++
		}
	}
	return count, nil
}

type memProductRepository struct{ store *memStore }

func (m *memProductRepository) Create(ctx context.Context, p *domain.Product) error {
	if _, ok := m.store.categories[p.CategoryID]; !ok {
		return repository.ErrCategoryNotFound
	}
	m.store.products[p.ID] = p
	return nil
}

func (m *memProductRepository) Update(ctx context.Context, p *domain.Product) error {
	if _, ok := m.store.products[p.ID]; !ok {
		return repository.ErrProductNotFound
	}
	if _, ok := m.store.categories[p.CategoryID]; !ok {
		return repository.ErrCategoryNotFound
	}
	m.store.products[p.ID] = p
	return nil
}

func (m *memProductRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.store.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(m.store.products, id)
	delete(m.store.stock, id)
	return nil
}

func (m *memProductRepository) DeleteByCategory(ctx context.Context, categoryID uuid.UUID) error {
	for id, p := range m.store.products {
		if p.CategoryID == categoryID {
			delete(m.store.products, id)
			delete(m.store.stock, id)
		}
	}
	return nil
}

func (m *memProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	products, err := m.FindByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, repository.ErrProductNotFound
	}
	return products[0], nil
}

func (m *memProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Product, error) {
	products := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := m.store.products[id]
		if !ok {
			continue
		}
		copied := *p
		if category, ok := m.store.categories[p.CategoryID]; ok {
			copied.Category = category
		}
		if quantity, ok := m.store.stock[id]; ok {
			copied.Inventory = &domain.Inventory{ProductID: id, Quantity: quantity}
		}
		products = append(products, &copied)
	}
	return products, nil
}

func (m *memProductRepository) List(ctx context.Context) ([]*domain.Product, error) {
	ids := make([]uuid.UUID, 0, len(m.store.products))
	for id := range m.store.products {
		ids = append(ids, id)
	}
	return m.FindByIDs(ctx, ids)
}

type memInventoryRepository struct{ store *memStore }

func (m *memInventoryRepository) Upsert(ctx context.Context, productID uuid.UUID, quantity int) error {
	m.store.stock[productID] = quantity
	return nil
}

func (m *memInventoryRepository) Get(ctx context.Context, productID uuid.UUID) (*domain.Inventory, error) {
	quantity, ok := m.store.stock[productID]
	if !ok {
		return nil, repository.ErrInventoryNotFound
	}
	return &domain.Inventory{ProductID: productID, Quantity: quantity}, nil
}

func (m *memInventoryRepository) Decrement(ctx context.Context, productID uuid.UUID, quantity int) error {
	current, ok := m.store.stock[productID]
	if !ok || current < quantity {
		return repository.ErrStockConflict
	}
	m.store.stock[productID] = current - quantity
	return nil
}

type memSaleRepository struct{ store *memStore }

func (m *memSaleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	m.store.sales = append(m.store.sales, sale)
	return nil
}

func (m *memSaleRepository) List(ctx context.Context) ([]*domain.Sale, error) {
	sales := make([]*domain.Sale, 0, len(m.store.sales))
	for i := len(m.store.sales) - 1; i >= 0; i-- {
		sales = append(sales, m.store.sales[i])
	}
	return sales, nil
}

type memTxRunner struct{ store *memStore }

func (r *memTxRunner) Run(ctx context.Context, fn func(repository.Repos) error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stock := make(map[uuid.UUID]int, len(r.store.stock))
	for k, v := range r.store.stock {
		stock[k] = v
	}
	products := make(map[uuid.UUID]*domain.Product, len(r.store.products))
	for k, v := range r.store.products {
		products[k] = v
	}
	categories := make(map[uuid.UUID]*domain.Category, len(r.store.categories))
	for k, v := range r.store.categories {
		categories[k] = v
	}
	saleCount := len(r.store.sales)

	err := fn(repository.Repos{
		Users:       &memUserRepository{store: r.store},
		Categories:  &memCategoryRepository{store: r.store},
		Products:    &memProductRepository{store: r.store},
		Inventories: &memInventoryRepository{store: r.store},
		Sales:       &memSaleRepository{store: r.store},
	})
	if err != nil {
		r.store.stock = stock
		r.store.products = products
		r.store.categories = categories
		r.store.sales = r.store.sales[:saleCount]
		return err
	}
	return nil
}

// testEnv is a complete API wired over the in-memory store.
type testEnv struct {
	store  *memStore
	router chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	logger := zap.NewNop()
	jwtSecret := "test-secret-key"

	repos := repository.Repos{
		Users:       &memUserRepository{store: store},
		Categories:  &memCategoryRepository{store: store},
		Products:    &memProductRepository{store: store},
		Inventories: &memInventoryRepository{store: store},
		Sales:       &memSaleRepository{store: store},
	}
	txRunner := &memTxRunner{store: store}

	userService := service.NewUserService(repos.Users, &memRefreshTokenRepository{store: store}, jwtSecret)
	catalogService := service.NewCatalogService(repos, txRunner, service.DeleteRestrict)
	checkoutService := service.NewCheckoutService(txRunner, repos.Sales)

	userHandler := NewUserHandler(userService, logger, false)
	catalogHandler := NewCatalogHandler(catalogService, logger)
	saleHandler := NewSaleHandler(checkoutService, catalogService, logger)

	authMiddleware := middleware.AuthMiddleware(jwtSecret, logger)
	policy := middleware.NewPolicy([]middleware.Rule{
		{Resource: "categories", Method: http.MethodGet, Requires: middleware.AccessAuthenticated},
		{Resource: "categories", Method: http.MethodPost, Requires: middleware.AccessAdmin},
		{Resource: "categories", Method: http.MethodDelete, Requires: middleware.AccessAdmin},
		{Resource: "products", Method: http.MethodGet, Requires: middleware.AccessAuthenticated},
		{Resource: "products", Method: http.MethodPost, Requires: middleware.AccessAdmin},
		{Resource: "products", Method: http.MethodPut, Requires: middleware.AccessAdmin},
		{Resource: "products", Method: http.MethodDelete, Requires: middleware.AccessAdmin},
		{Resource: "sales", Method: http.MethodGet, Requires: middleware.AccessAuthenticated},
		{Resource: "sales", Method: http.MethodPost, Requires: middleware.AccessAuthenticated},
		{Resource: "users", Method: http.MethodGet, Requires: middleware.AccessAdmin},
		{Resource: "users", Method: http.MethodPost, Requires: middleware.AccessAdmin},
		{Resource: "users", Method: http.MethodPut, Requires: middleware.AccessAdmin},
		{Resource: "seed", Method: http.MethodPost, Requires: middleware.AccessAdmin},
	})
	passthrough := func(next http.Handler) http.Handler { return next }

	router := chi.NewRouter()
	userHandler.RegisterRoutes(router, authMiddleware, passthrough, policy)
	catalogHandler.RegisterRoutes(router, authMiddleware, policy)
	saleHandler.RegisterRoutes(router, authMiddleware, policy)

	return &testEnv{store: store, router: router}
}

// loginAs creates a user with the given role and returns an access token.
func (e *testEnv) loginAs(t *testing.T, role domain.Role) string {
	t.Helper()

	email := fmt.Sprintf("%s-%s@shop.com", role, uuid.New())
	body := map[string]string{
		"email":    email,
		"password": "password123",
		"name":     "Test User",
	}

	w := e.do(t, http.MethodPost, "/api/auth/register", "", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("registration failed: %d %s", w.Code, w.Body.String())
	}

	// Promote directly in the store when an admin is needed
	if role == domain.RoleAdmin {
		e.store.users[email].Role = domain.RoleAdmin
	}

	w = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": "password123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}

	var resp LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding login response failed: %v", err)
	}
	return resp.AccessToken
}

// do performs a request against the router, optionally authenticated.
func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body failed: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.AuthCookieName, Value: token})
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// seedCatalog creates a category and product directly in the store.
func (e *testEnv) seedCatalog(t *testing.T, price float64, quantity int) (uuid.UUID, uuid.UUID) {
	t.Helper()

	categoryID := uuid.New()
	e.store.categories[categoryID] = &domain.Category{ID: categoryID, Name: fmt.Sprintf("category-%s", categoryID)}

	productID := uuid.New()
	e.store.products[productID] = &domain.Product{
		ID:         productID,
		Name:       fmt.Sprintf("product-%s", productID),
		Price:      price,
		CategoryID: categoryID,
	}
	e.store.stock[productID] = quantity

	return categoryID, productID
}
