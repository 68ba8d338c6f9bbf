package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"retail-pos/internal/config"
	custommiddleware "retail-pos/internal/middleware"
	"retail-pos/internal/repository"
	"retail-pos/internal/service"
	"retail-pos/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
}

// policyRules is the authorization table for the whole API. Catalog and
// sales reads/writes admit any authenticated role except catalog writes,
// user management and seeding, which are admin-only.
func policyRules() []custommiddleware.Rule {
	return []custommiddleware.Rule{
		{Resource: "categories", Method: http.MethodGet, Requires: custommiddleware.AccessAuthenticated},
		{Resource: "categories", Method: http.MethodPost, Requires: custommiddleware.AccessAdmin},
		{Resource: "categories", Method: http.MethodDelete, Requires: custommiddleware.AccessAdmin},

		{Resource: "products", Method: http.MethodGet, Requires: custommiddleware.AccessAuthenticated},
		{Resource: "products", Method: http.MethodPost, Requires: custommiddleware.AccessAdmin},
		{Resource: "products", Method: http.MethodPut, Requires: custommiddleware.AccessAdmin},
		{Resource: "products", Method: http.MethodDelete, Requires: custommiddleware.AccessAdmin},

		{Resource: "sales", Method: http.MethodGet, Requires: custommiddleware.AccessAuthenticated},
		{Resource: "sales", Method: http.MethodPost, Requires: custommiddleware.AccessAuthenticated},

		{Resource: "users", Method: http.MethodGet, Requires: custommiddleware.AccessAdmin},
		{Resource: "users", Method: http.MethodPost, Requires: custommiddleware.AccessAdmin},
		{Resource: "users", Method: http.MethodPut, Requires: custommiddleware.AccessAdmin},

		{Resource: "seed", Method: http.MethodPost, Requires: custommiddleware.AccessAdmin},
	}
}

func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB, redisClient *redis.Client) (*Server, error) {
	deletePolicy, err := service.ParseDeletePolicy(cfg.Catalog.DeletePolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to configure catalog: %w", err)
	}

	isDevelopment := cfg.Server.Env != "production"

	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(nil, isDevelopment))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Initialize repositories and the transaction runner
	repos := repository.NewRepos(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	txRunner := repository.NewTxRunner(db)

	// Initialize services
	userService := service.NewUserService(repos.Users, refreshTokenRepo, cfg.JWT.Secret)
	catalogService := service.NewCatalogService(repos, txRunner, deletePolicy)
	checkoutService := service.NewCheckoutService(txRunner, repos.Sales)

	// Initialize handlers
	userHandler := transport.NewUserHandler(userService, logger, !isDevelopment)
	catalogHandler := transport.NewCatalogHandler(catalogService, logger)
	saleHandler := transport.NewSaleHandler(checkoutService, catalogService, logger)

	// Create shared middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	policy := custommiddleware.NewPolicy(policyRules())
	loginLimiter := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: 10,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit:auth",
	}, logger)

	// Register routes
	userHandler.RegisterRoutes(router, authMiddleware, loginLimiter, policy)
	catalogHandler.RegisterRoutes(router, authMiddleware, policy)
	saleHandler.RegisterRoutes(router, authMiddleware, policy)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
	}

	return server, nil
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
