package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ayash-Bera/reviewboard/backend/internal/api/handlers"
	"github.com/Ayash-Bera/reviewboard/backend/internal/api/routes"
	"github.com/Ayash-Bera/reviewboard/backend/internal/config"
	"github.com/Ayash-Bera/reviewboard/backend/internal/database"
	"github.com/Ayash-Bera/reviewboard/backend/internal/health"
	"github.com/Ayash-Bera/reviewboard/backend/internal/middleware"
	"github.com/Ayash-Bera/reviewboard/backend/internal/migration"
	"github.com/Ayash-Bera/reviewboard/backend/internal/repository"
	"github.com/Ayash-Bera/reviewboard/backend/internal/services"
	"github.com/Ayash-Bera/reviewboard/backend/pkg/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const serviceName = "reviewboard-api"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.InitLogger(cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	facets, err := services.ParseFacetPolicy(cfg.Facets.Policy)
	if err != nil {
		logger.WithError(err).Fatal("Invalid facet policy")
	}

	dbManager, err := database.NewManager(&database.Config{
		DatabaseURL: cfg.Database.URL,
		RedisURL:    cfg.Redis.URL,
		LogLevel:    cfg.Database.LogLevel,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	if err := migration.NewRunner(dbManager, logger).RunMigrations(cfg.Database.MigrationsPath); err != nil {
		logger.WithError(err).Fatal("Database migrations failed")
	}

	repoManager := repository.NewRepositoryManager(dbManager.DB)

	// A nil *database.Cache must not reach the interfaces below.
	var (
		listCache   services.ListCache
		statusCache health.StatusCache
	)
	if dbManager.Redis != nil {
		cache := database.NewCache(dbManager.Redis, logger)
		listCache = cache
		statusCache = cache
	}

	queryService := services.NewQueryService(repoManager.Reviews, listCache, services.QueryOptions{
		PageSize: cfg.Pagination.PageSize,
		Facets:   facets,
		CacheTTL: cfg.Cache.ListTTL,
	}, logger)
	reviewService := services.NewReviewService(repoManager.Reviews, listCache, logger)

	checker := health.NewHealthChecker(dbManager, statusCache, repoManager.SystemHealth, logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	go checker.PeriodicHealthCheck(ctx, time.Minute)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute)
	go limiter.Run(ctx)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(logger),
		middleware.SecurityHeaders(),
		cors.New(cors.Config{
			AllowOrigins:  cfg.CORS.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", middleware.RequestIDHeader},
			ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}),
		limiter.RateLimit(),
	)

	routes.Setup(router, &routes.Dependencies{
		Reviews: handlers.NewReviewHandler(queryService, reviewService, logger),
		Health:  handlers.NewHealthHandler(checker, serviceName),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutdown signal received, draining connections...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
		return
	}

	logger.Info("Server stopped")
}
