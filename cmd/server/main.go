package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cutout/backend/internal/application/bot"
	apppayment "github.com/cutout/backend/internal/application/payment"
	"github.com/cutout/backend/internal/application/pipeline"
	"github.com/cutout/backend/internal/application/quota"
	"github.com/cutout/backend/internal/infrastructure/cache"
	"github.com/cutout/backend/internal/infrastructure/config"
	"github.com/cutout/backend/internal/infrastructure/logger"
	"github.com/cutout/backend/internal/infrastructure/messaging"
	infrapayment "github.com/cutout/backend/internal/infrastructure/payment"
	"github.com/cutout/backend/internal/infrastructure/persistence"
	"github.com/cutout/backend/internal/infrastructure/removal"
	"github.com/cutout/backend/internal/infrastructure/storage"
	"github.com/cutout/backend/internal/interfaces/http/handler"
	"github.com/cutout/backend/internal/interfaces/http/middleware"
	"github.com/cutout/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting cutout backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories and the quota service
	subscriberRepo := persistence.NewGormSubscriberRepository(db.DB)
	quotaService := quota.NewService(subscriberRepo, log)

	// Messaging capability carries both directions: outbound sends and
	// authenticated inbound media fetches.
	twilioClient, err := messaging.NewTwilioClient(&cfg.Twilio, messaging.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to initialize messaging client", zap.Error(err))
	}

	// Object storage for pipeline artifacts
	objectStorage, err := storage.NewS3ObjectStorage(&cfg.Storage, storage.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to initialize object storage", zap.Error(err))
	}
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			log.Warn("Could not ensure storage bucket", zap.Error(err))
		}
		cancel()
	}

	// Background removal is optional; without credentials media events get a
	// capability-missing reply instead of a pipeline run.
	var remover pipeline.BackgroundRemover
	if cfg.RemoveBg.Configured() {
		removeBgClient, err := removal.NewRemoveBgClient(&cfg.RemoveBg, removal.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize removal client", zap.Error(err))
		}
		remover = removeBgClient
	} else {
		log.Warn("Background removal not configured, media events will be refused")
	}

	var runner bot.PipelineRunner
	if remover != nil {
		runner = pipeline.NewOrchestrator(twilioClient, remover, objectStorage, log)
	}

	// Payment capability is optional as well
	var (
		orderCreator infrapayment.OrderCreator
		verifier     handler.AssertionVerifier
	)
	if cfg.Razorpay.Configured() {
		razorpayClient, err := infrapayment.NewRazorpayClient(&cfg.Razorpay, infrapayment.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize payment client", zap.Error(err))
		}
		orderCreator = razorpayClient

		idempotencyStore := cache.NewIdempotencyStore(&cfg.Redis, log)
		defer func() {
			if err := idempotencyStore.Close(); err != nil {
				log.Error("Error closing idempotency store", zap.Error(err))
			}
		}()

		verifier = apppayment.NewVerifier(cfg.Razorpay.KeySecret, quotaService, log,
			apppayment.WithIdempotencyStore(idempotencyStore, 24*time.Hour))
	} else {
		log.Warn("Payment gateway not configured, upgrade flow is disabled")
	}

	// Event dispatcher
	dispatcher := bot.NewDispatcher(quotaService, runner, twilioClient, bot.Config{
		RemovalConfigured: remover != nil,
		PaymentConfigured: orderCreator != nil,
		CheckoutURL:       cfg.Razorpay.CheckoutURL,
		PremiumPrice:      cfg.Razorpay.PremiumPrice,
	}, log)

	// HTTP handlers
	webhookHandler := handler.NewWebhookHandler(dispatcher, twilioClient, log)
	paymentHandler := handler.NewPaymentHandler(orderCreator, verifier, log)
	healthHandler := handler.NewHealthHandler(db)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.RegisterRoot(healthHandler)
	r.RegisterRoot(webhookHandler)
	r.Register(paymentHandler)
	r.Setup()

	// HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}
