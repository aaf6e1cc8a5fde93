package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/kendall-kelly/service-spot-api/config"
	"github.com/kendall-kelly/service-spot-api/controllers"
	"github.com/kendall-kelly/service-spot-api/logger"
	"github.com/kendall-kelly/service-spot-api/metrics"
	"github.com/kendall-kelly/service-spot-api/middleware"
	"github.com/kendall-kelly/service-spot-api/services"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)
	logger.Info("Starting Service Spot API server...", "env", cfg.GoEnv)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	if err := config.ConnectDatabase(cfg.DatabaseURL); err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	db := config.GetDB()
	if err := config.Migrate(db); err != nil {
		logger.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	logger.Info("Database migration completed successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.WallClock

	var limiter services.RateLimiter = services.NewMemoryRateLimiter(clk, cfg.LoginRateLimit, cfg.LoginRateWindow)
	if cfg.RedisURL != "" {
		redisLimiter, err := services.NewRedisRateLimiter(ctx, cfg.RedisURL, cfg.LoginRateLimit, cfg.LoginRateWindow)
		if err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisLimiter.Close()
		limiter = redisLimiter
		logger.Info("Login rate limiting backed by Redis")
	}

	var events services.EventPublisher = services.NoopPublisher{}
	if cfg.NATSURL != "" {
		publisher, err := services.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		events = publisher
		logger.Info("Publishing domain events to NATS", "url", cfg.NATSURL)
	}
	defer events.Close()

	// images stays a nil interface without storage so uploads are refused
	var images services.ImageService
	switch {
	case cfg.HasS3():
		store, err := services.NewS3Store(ctx, cfg)
		if err != nil {
			logger.Error("Failed to initialise S3", "error", err)
			os.Exit(1)
		}
		images = services.NewOfferingImages(store)
		logger.Info("Offering images stored in S3", "bucket", cfg.AWSS3Bucket)
	case cfg.IsDevelopment():
		images = services.NewOfferingImages(services.NewMemoryObjectStore())
		logger.Warn("AWS_S3_BUCKET not set, offering images are kept in memory")
	}

	identity := services.NewIdentityService(db, clk, limiter, cfg.SessionTTL)
	if cfg.HasAdminSeed() {
		if _, err := identity.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName); err != nil {
			logger.Error("Failed to ensure administrator account", "error", err)
			os.Exit(1)
		}
	}

	api := controllers.New(controllers.Services{
		Identity:   identity,
		Bookings:   services.NewBookingService(db, clk, events, cfg.MaxBookingNotesLength),
		Reviews:    services.NewReviewService(db, clk, events),
		Offerings:  services.NewOfferingService(db, clk, images),
		Moderation: services.NewModerationService(db, clk, events, images, cfg.DeleteConfirmationTTL),
		Statistics: services.NewStatisticsService(db, clk),
	})

	router := setupRouter(api, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server is running", "addr", "http://localhost:"+cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Server stopped")
}

// setupRouter builds the Gin engine with the ambient middleware, the
// operational endpoints and the /api/v1 routes
func setupRouter(api *controllers.API, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	if len(allowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/health", healthCheck)
	router.GET("/database/status", databaseStatus)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	if api != nil {
		api.RegisterRoutes(router.Group("/api/v1"))
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Service Spot API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, middleware.ErrorBody("DATABASE_ERROR", "Database is not initialised"))
		return
	}

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, middleware.ErrorBody("DATABASE_ERROR", "Failed to get database instance"))
		return
	}

	// Ping the database to verify connection
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, middleware.ErrorBody("DATABASE_CONNECTION_ERROR", "Database connection failed"))
		return
	}

	tables, err := listTables(db)
	if err != nil {
		c.JSON(http.StatusInternalServerError, middleware.ErrorBody("DATABASE_QUERY_ERROR", "Failed to query tables"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}

func listTables(db *gorm.DB) ([]string, error) {
	return db.Migrator().GetTables()
}
