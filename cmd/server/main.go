package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/matchsim/backend/docs"
	"github.com/matchsim/backend/internal/config"
	"github.com/matchsim/backend/internal/database"
	"github.com/matchsim/backend/internal/handlers"
	mW "github.com/matchsim/backend/internal/middleware"
	"github.com/matchsim/backend/internal/services"
	"github.com/matchsim/backend/internal/storage"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Match Simulator Backend API
// @version 1.0
// @description API for the club management and transfer market backend
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Match Simulator Backend API"
	docs.SwaggerInfo.Description = "API for the club management and transfer market backend"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	if err := database.EnsureSchema(db); err != nil {
		log.Fatalf("Failed to apply database schema: %v", err)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	economy := config.LoadEconomyConfig()

	blobs, err := storage.NewFileBlobStore(economy.BlobDir)
	if err != nil {
		log.Fatalf("Failed to initialize squad image store: %v", err)
	}

	auditService := services.NewAuditService(db)
	ledgerService := services.NewLedgerService(db, auditService)
	bidService := services.NewBidService(db, redisClient, ledgerService, auditService)
	submissionService := services.NewSubmissionService(db, auditService)
	distributionService := services.NewDistributionService(db, ledgerService, economy)
	accountService := services.NewAccountService(db, redisClient, ledgerService, auditService, economy)
	catalogService := services.NewCatalogService(db)
	squadHandler := handlers.NewSquadHandler(submissionService, blobs)

	// Seed the player catalog on first boot. Re-runs are no-ops for
	// rows that already exist.
	if economy.CatalogCSVPath != "" {
		if _, err := os.Stat(economy.CatalogCSVPath); err == nil {
			inserted, err := catalogService.SeedFromCSV(economy.CatalogCSVPath)
			if err != nil {
				log.Printf("Warning: Failed to seed player catalog: %v", err)
			} else if inserted > 0 {
				log.Printf("Seeded %d players from %s", inserted, economy.CatalogCSVPath)
			}
		}
	}

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for uploaded squad images
	r.Handle("/static/squads/*", http.StripPrefix("/static/squads/",
		mW.StaticFileServer(blobs.Dir())))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", accountService.Register)
		r.Post("/auth/login", accountService.Login)
		r.Post("/auth/logout", accountService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/account", accountService.GetMyAccount)
			r.Get("/accounts/balance", accountService.GetBalance)
			r.Get("/accounts/inventory", accountService.GetInventory)

			// Transfer bid endpoints
			r.Post("/bids", bidService.SubmitBid)
			r.Get("/bids", bidService.ListMyBids)

			// Squad submission endpoints
			r.Post("/squads", squadHandler.Upload)
			r.Get("/squads", squadHandler.ListMine)

			// Player catalog endpoints
			r.Get("/players", catalogService.SearchPlayers)
			r.Get("/players/{playerId}", catalogService.GetPlayer)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.AdminOnly)

				r.Get("/admin/accounts", accountService.ListAccounts)
				r.Put("/admin/accounts/{accountId}/status", accountService.HandleSetStatus)

				r.Get("/admin/bids", bidService.ListBids)
				r.Put("/admin/bids/{bidId}/approve", bidService.ApproveBid)
				r.Put("/admin/bids/{bidId}/reject", bidService.RejectBid)

				r.Get("/admin/squads", squadHandler.List)
				r.Put("/admin/squads/{submissionId}/approve", squadHandler.Approve)
				r.Put("/admin/squads/{submissionId}/reject", squadHandler.Reject)

				r.Post("/admin/distributions", distributionService.HandleDistribute)
				r.Get("/admin/audit", auditService.HandleQuery)

				r.Post("/admin/players", catalogService.CreateCustomPlayer)
				r.Put("/admin/players/{playerId}", catalogService.UpdateCustomPlayer)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
