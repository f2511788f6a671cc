package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"dataload-service/internal/config"
	"dataload-service/internal/dataload"
	"dataload-service/internal/events"
	"dataload-service/internal/handlers"
	"dataload-service/internal/jobs"
	"dataload-service/internal/middleware"
	"dataload-service/internal/queue"
	"dataload-service/internal/repository"
	"dataload-service/internal/services"
	"dataload-service/internal/storage"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/Tesseract-Nexus/go-shared/tracing"
)

// @title Catalog Data Load API
// @version 1.0.0
// @description Bulk CSV/XLSX ingestion of categories, brands, attributes, return policies and products

// @host localhost:8096
// @BasePath /api/v1

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.IsProduction() {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Redis carries the job queue, so unlike the cache-only services it is required
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to parse Redis URL:", err)
	}
	if cfg.RedisPassword != "" {
		redisOpts.Password = cfg.RedisPassword
	}
	redisClient := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("WARNING: Failed to connect to Redis: %v (jobs will queue once it is reachable)", err)
	} else {
		log.Println("✓ Redis connected successfully")
	}
	cancel()

	var objects storage.ObjectStore
	switch cfg.StorageBackend {
	case "s3":
		s3Store, err := storage.NewS3Store(context.Background(), cfg.StorageBucket, cfg.S3Endpoint)
		if err != nil {
			log.Fatal("Failed to initialize S3 storage:", err)
		}
		objects = s3Store
		log.Printf("✓ S3 storage initialized (bucket %s)", cfg.StorageBucket)
	default:
		localStore, err := storage.NewLocalStore(cfg.StorageLocalDir)
		if err != nil {
			log.Fatal("Failed to initialize local storage:", err)
		}
		objects = localStore
		log.Printf("✓ Local storage initialized (%s)", cfg.StorageLocalDir)
	}

	sessionRepo := repository.NewSessionRepository(db)
	catalogRepo := repository.NewCatalogRepository(db, redisClient, cfg.RowTimeout)
	jobQueue := queue.NewRedisQueue(redisClient)

	pipeline := dataload.NewPipeline(catalogRepo, logger, dataload.PipelineConfig{
		RowTimeout:    cfg.RowTimeout,
		ProgressEvery: cfg.ProgressEvery,
	})

	opts := services.UploadServiceOptions{
		DeleteAfterProcessing: cfg.DeleteAfterProcessing,
		EnforceSequence:       cfg.EnforceUploadSequence,
	}
	var eventsPublisher *events.Publisher
	if cfg.NATSURL != "" {
		eventsPublisher, err = events.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			log.Printf("WARNING: Failed to initialize events publisher: %v (continuing without event publishing)", err)
		} else {
			opts.Publisher = eventsPublisher
			log.Println("✓ Events publisher initialized (NATS connected)")
		}
	} else {
		log.Println("NATS_URL not set, skipping event publishing initialization")
	}
	defer func() {
		if eventsPublisher != nil {
			eventsPublisher.Close()
		}
	}()

	uploadService := services.NewUploadService(sessionRepo, objects, jobQueue, pipeline, logger, opts)

	uploadHandler := handlers.NewUploadHandler(uploadService, cfg.MaxUploadSizeMB<<20, logger)
	templateHandler := handlers.NewTemplateHandler()
	healthHandler := handlers.NewHealthHandler(db, redisClient)

	var tracerProvider *tracing.TracerProvider
	if cfg.IsProduction() {
		tracerProvider, err = tracing.InitTracer(tracing.ProductionConfig("dataload-service"))
	} else {
		tracerProvider, err = tracing.InitTracer(tracing.DefaultConfig("dataload-service"))
	}
	if err != nil {
		log.Printf("WARNING: Failed to initialize tracing: %v (continuing without tracing)", err)
	} else {
		log.Println("✓ OpenTelemetry tracing initialized")
	}

	metrics := gosharedmw.InitGlobalMetrics("tesseract", "dataload_service")
	log.Println("✓ Prometheus metrics initialized")

	rbacMw := rbac.NewMiddlewareWithURL(cfg.StaffServiceURL, nil)
	log.Println("✓ RBAC middleware initialized")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware())
	router.Use(tracing.GinMiddleware("dataload-service"))
	router.Use(gosharedmw.CompressionMiddleware())
	router.Use(middleware.CORS())

	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/metrics", gosharedmw.Handler())

	api := router.Group("/api/v1")
	if cfg.Environment == "development" {
		api.Use(middleware.DevelopmentAuthMiddleware())
		api.Use(middleware.TenantMiddleware())
	} else if cfg.JWTSecret != "" {
		api.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
		api.Use(middleware.TenantMiddleware())
	} else {
		api.Use(gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
			RequireAuth:        true,
			AllowLegacyHeaders: true,
			Logger:             logrus.NewEntry(logger).WithField("component", "istio_auth"),
		}))
		api.Use(middleware.TenantMiddleware())
	}

	uploadLimiter := middleware.NewTenantRateLimiter(cfg.UploadRatePerMinute, cfg.UploadRateBurst)
	dl := api.Group("/dataload")
	{
		dl.POST("/uploads", rbacMw.RequirePermission(rbac.PermissionProductsImport), uploadLimiter.Middleware(), uploadHandler.Upload)
		dl.GET("/templates/:loadType", rbacMw.RequirePermission(rbac.PermissionProductsImport), templateHandler.GetTemplate)

		dl.GET("/sessions", rbacMw.RequirePermission(rbac.PermissionProductsRead), uploadHandler.ListSessions)
		dl.GET("/sessions/:id", rbacMw.RequirePermission(rbac.PermissionProductsRead), uploadHandler.GetSession)
		dl.GET("/sessions/:id/errors", rbacMw.RequirePermission(rbac.PermissionProductsRead), uploadHandler.GetSessionErrors)
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Background processing
	bgCtx, stopBackground := context.WithCancel(context.Background())
	dispatcher := jobs.NewDispatcher(jobQueue, uploadService, logger, cfg.DispatcherWorkers, cfg.DispatchPollTimeout)
	dispatcher.Start(bgCtx)
	sweeper := jobs.NewPendingSweeper(sessionRepo, jobQueue, logger, cfg.SweepInterval, cfg.SweepPendingAfter, cfg.SweepAbandonedAfter)
	go sweeper.Start(bgCtx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Dataload service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-quit
	log.Println("Shutting down dataload-service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	// In-flight jobs finish; workers stop taking new ones
	sweeper.Stop()
	stopBackground()
	dispatcher.Stop()
	log.Println("✓ Dispatcher drained")

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		} else {
			log.Println("✓ Tracer provider shut down")
		}
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Dataload service stopped")
}
