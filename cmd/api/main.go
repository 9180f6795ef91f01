package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nuwa/carbon-engine/internal/cache"
	"nuwa/carbon-engine/internal/carbon"
	"nuwa/carbon-engine/internal/config"
	"nuwa/carbon-engine/internal/database"
	"nuwa/carbon-engine/internal/export"
	"nuwa/carbon-engine/internal/logging"
	"nuwa/carbon-engine/internal/projects"
	"nuwa/carbon-engine/internal/rollup"
	"nuwa/carbon-engine/internal/timeseries"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Connect to database
	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logger); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// Cache
	store, err := cache.NewStore(cfg.Cache.Driver, cfg.Cache.RedisURL, cfg.Cache.Namespace)
	if err != nil {
		logger.Fatal("Failed to create cache store", zap.Error(err))
	}
	rollupCache := cache.New(store, cfg.Cache.TTL, logger)
	defer rollupCache.Close()

	// Engine
	repo := projects.NewGormRepository(db)
	aggregator := rollup.NewAggregator(repo, rollupCache, logger)
	materializer := timeseries.NewMaterializer(repo, logger, cfg.Simulation.DefaultMaxYears, aggregator.InvalidateProject)

	service := carbon.NewService(repo, materializer, aggregator, rollupCache, carbon.Config{
		DefaultMaxYears:    cfg.Simulation.DefaultMaxYears,
		TruncatePopulation: cfg.Simulation.TruncatePopulation,
	}, logger).WithDatabaseCheck(func(ctx context.Context) error {
		return database.Ping(ctx, db)
	})

	if cfg.Export.Bucket != "" {
		archiver, err := export.NewS3Archiver(ctx, export.ArchiveConfig{
			Bucket:    cfg.Export.Bucket,
			Region:    cfg.Export.Region,
			Endpoint:  cfg.Export.Endpoint,
			Prefix:    cfg.Export.Prefix,
			PathStyle: cfg.Export.PathStyle,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create export archiver", zap.Error(err))
		}
		service.WithArchiver(archiver)
		logger.Info("Export archiving enabled", zap.String("bucket", cfg.Export.Bucket))
	}

	handler := carbon.NewHandler(service, logger)

	// Setup Router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.RequestLogger(logger))
	router.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	router.Use(timeoutMiddleware(cfg.Server.RequestTimeout))

	// Register Routes
	api := router.Group("/api/v1")
	{
		handler.RegisterRoutes(api)
	}

	// Health Checks
	handler.RegisterHealthRoutes(router)

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", srv.Addr))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "config.json"
}

// corsMiddleware allows the configured origins. A "*" entry allows any.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		origins[o] = struct{}{}
	}
	_, wildcard := origins["*"]

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if _, ok := origins[origin]; ok || (wildcard && origin != "") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
			c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Archive-Key")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// timeoutMiddleware bounds the request context.
func timeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
