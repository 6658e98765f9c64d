package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/swiftride/booking-backend/internal/cache"
	"github.com/swiftride/booking-backend/internal/config"
	"github.com/swiftride/booking-backend/internal/database"
	"github.com/swiftride/booking-backend/internal/handlers"
	"github.com/swiftride/booking-backend/internal/middleware"
	"github.com/swiftride/booking-backend/internal/realtime"
	"github.com/swiftride/booking-backend/internal/services"
	"github.com/swiftride/booking-backend/internal/utils"
	"github.com/swiftride/booking-backend/internal/websocket"
	"github.com/swiftride/booking-backend/pkg/jwt"
	"github.com/swiftride/booking-backend/pkg/momo"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SwiftRide Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize Redis. The cache, rate limiter and retry queue all
	// degrade gracefully when Redis is unavailable, so a connection
	// failure is logged but does not prevent startup.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warnf("Redis unavailable, caching and retry queue disabled: %v", err)
		redisClient = nil
	} else {
		logger.Infof("Redis connection established (%s)", cfg.Redis.Addr)
	}
	pingCancel()

	// Initialize repositories
	rideRepo := database.NewRideRepository(db)
	bookingRepo := database.NewBookingRepository(db)
	paymentRepo := database.NewPaymentRepository(db)
	messageRepo := database.NewMessageRepository(db)
	pushTokenRepo := database.NewPushTokenRepository(db)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)

	gateways := map[momo.Provider]momo.Gateway{
		momo.ProviderMTN: momo.NewMTNGateway(momo.MTNConfig{
			BaseURL:         cfg.MTN.BaseURL,
			Environment:     cfg.MTN.Environment,
			SubscriptionKey: cfg.MTN.SubscriptionKey,
			APIUser:         cfg.MTN.APIUser,
			APIKey:          cfg.MTN.APIKey,
			CallbackURL:     cfg.MTN.CallbackURL,
		}, logger),
		momo.ProviderOrange: momo.NewOrangeGateway(momo.OrangeConfig{
			BaseURL:      cfg.Orange.BaseURL,
			ClientID:     cfg.Orange.ClientID,
			ClientSecret: cfg.Orange.ClientSecret,
			MerchantKey:  cfg.Orange.MerchantKey,
			PIN:          cfg.Orange.PIN,
		}, logger),
	}

	hub := websocket.NewHub(logger)
	hub.Start()

	pushService := services.NewPushService(cfg.Push, logger)
	retryQueue := services.NewRetryQueue(redisClient, cfg.Notify, pushService, pushTokenRepo, logger)
	retryQueue.Start()

	notificationManager := services.NewNotificationManager(
		hub,
		pushService,
		retryQueue,
		rideRepo,
		pushTokenRepo,
		cfg.Notify,
		logger,
	)

	bookingCache := cache.NewBookingCache(redisClient, cfg.Redis.CacheTTL, logger)
	bookingService := services.NewBookingService(bookingRepo, rideRepo, bookingCache, notificationManager, logger)

	poller := services.NewPaymentPoller(cfg.Polling, logger)
	rateLimiter := services.NewRateLimiter(redisClient, cfg.RateLimit, logger)
	paymentService := services.NewPaymentService(
		paymentRepo,
		bookingRepo,
		rideRepo,
		bookingService,
		gateways,
		poller,
		rateLimiter,
		cfg.Polling,
		cfg.Notify,
		logger,
	)
	// Pick up payments orphaned by the previous process before serving
	// traffic.
	if err := paymentService.ResumePending(); err != nil {
		logger.WithError(err).Warn("Failed to resume pending payments")
	}

	messageService := services.NewMessageService(messageRepo, bookingRepo, rideRepo, logger)
	receiptService := services.NewReceiptService(bookingRepo, rideRepo, paymentRepo, logger)
	logger.Info("Services initialized")

	// Start the Postgres change feed. Events flow to the notification
	// manager which fans out over websocket and push.
	listener := realtime.NewListener(cfg.Database.URL, notificationManager.HandleChange, logger)
	if err := listener.Start(); err != nil {
		logger.Fatalf("Failed to start change feed listener: %v", err)
	}
	logger.Info("Change feed listener started")

	// Initialize handlers
	rideHandler := handlers.NewRideHandler(bookingService, logger)
	bookingHandler := handlers.NewBookingHandler(bookingService, receiptService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, logger)
	messageHandler := handlers.NewMessageHandler(messageService, logger)
	notificationHandler := handlers.NewNotificationHandler(notificationManager, bookingRepo, rideRepo, pushTokenRepo, logger)
	wsHandler := handlers.NewWSHandler(hub, jwtService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(middleware.PrometheusMiddleware())

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health and metrics endpoints
	router.GET("/health", healthCheckHandler(db))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Websocket endpoint. Authentication happens inside the handler
	// because browsers cannot attach headers to upgrade requests.
	router.GET("/ws", wsHandler.Connect)

	// API routes
	api := router.Group("/api/v1")
	{
		// Public routes (no authentication required)
		api.GET("/rides", rideHandler.ListRides)
		api.GET("/rides/:id", rideHandler.GetRide)
		api.GET("/payments/providers", paymentHandler.ListProviders)

		// Protected routes (require JWT authentication)
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(jwtService))
		{
			// Booking wizard
			protected.POST("/bookings", bookingHandler.UpsertBooking)
			protected.GET("/bookings", bookingHandler.ListBookings)
			protected.GET("/bookings/existing", bookingHandler.GetExistingBooking)
			protected.GET("/bookings/:id", bookingHandler.GetBooking)
			protected.POST("/bookings/:id/cancel", bookingHandler.CancelBooking)
			protected.GET("/bookings/:id/receipt", bookingHandler.GetReceipt)

			// Payments
			protected.POST("/payments", paymentHandler.CreatePayment)
			protected.GET("/payments/status", paymentHandler.GetStatus)

			// Booking chat
			protected.GET("/bookings/:id/messages", messageHandler.ListMessages)
			protected.POST("/messages", messageHandler.SendMessage)

			// Notifications
			protected.POST("/notifications/booking", notificationHandler.NotifyBooking)
			protected.POST("/push/register", notificationHandler.RegisterToken)
			protected.DELETE("/push/register", notificationHandler.UnregisterToken)
		}

		// Admin routes
		admin := api.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtService))
		admin.Use(middleware.RequireRole("admin"))
		{
			admin.POST("/push/send", notificationHandler.SendPush)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Stop background workers after the HTTP surface is closed so
	// in-flight requests can still enqueue work.
	listener.Stop()
	poller.Stop()
	retryQueue.Stop()
	hub.Stop()

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		device := utils.ParseUserAgent(c.Request.UserAgent())

		fields := logrus.Fields{
			"status":      c.Writer.Status(),
			"method":      c.Request.Method,
			"path":        path,
			"query":       query,
			"ip":          utils.GetRealIP(c),
			"latency_ms":  latency.Milliseconds(),
			"device_type": device.DeviceType,
			"platform":    device.Platform,
		}

		// Authorization header presence only, never the token itself
		if c.GetHeader("Authorization") != "" {
			fields["has_auth"] = true
		} else {
			fields["has_auth"] = false
		}

		if userCtx, ok := middleware.GetUserContext(c); ok {
			fields["user_id"] = userCtx.UserID
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
		} else {
			status := c.Writer.Status()
			if status >= 500 {
				entry.Error("Request completed with server error")
			} else if status >= 400 {
				entry.Warn("Request completed with client error")
			} else {
				entry.Info("Request completed successfully")
			}
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "healthy"
		if err := db.Ping(); err != nil {
			dbStatus = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": dbStatus,
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  dbStatus,
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
