package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alexxgorcea9/primepass/internal/allocation"
	"github.com/alexxgorcea9/primepass/internal/emitter"
	"github.com/alexxgorcea9/primepass/internal/handler"
	"github.com/alexxgorcea9/primepass/internal/ledger"
	"github.com/alexxgorcea9/primepass/internal/metrics"
	"github.com/alexxgorcea9/primepass/internal/repository"
	"github.com/alexxgorcea9/primepass/internal/service"
	"github.com/alexxgorcea9/primepass/internal/worker"
	"github.com/alexxgorcea9/primepass/pkg/config"
	"github.com/alexxgorcea9/primepass/pkg/database"
	"github.com/alexxgorcea9/primepass/pkg/logger"
	"github.com/alexxgorcea9/primepass/pkg/middleware"
	pkgredis "github.com/alexxgorcea9/primepass/pkg/redis"
	"github.com/alexxgorcea9/primepass/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       "info",
		ServiceName: cfg.App.Name,
		Development: cfg.App.IsDevelopment(),
	}
	if cfg.App.Debug {
		logCfg.Level = "debug"
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting registration engine...")

	ctx := context.Background()

	// Initialize tracing
	_, err = telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	if err := metrics.Init(); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to initialize metrics: %v", err))
	}

	// Storage backends depend on the configured engine backend: redis pairs
	// the Redis ledger with PostgreSQL repositories, memory runs everything
	// in process.
	var (
		db          *database.PostgresDB
		redisClient *pkgredis.Client
		counters    ledger.Ledger
		eventRepo   repository.EventRepository
		regRepo     repository.RegistrationRepository
	)

	if cfg.Engine.Backend == "redis" {
		db, err = database.NewPostgres(ctx, &database.PostgresConfig{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.DBName,
			SSLMode:         cfg.Database.SSLMode,
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MaxIdleConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnectTimeout:  5 * time.Second,
			MaxRetries:      3,
			RetryInterval:   time.Second,
			EnableTracing:   cfg.OTel.Enabled,
		})
		if err != nil {
			appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
		}
		defer db.Close()
		appLog.Info("Database connected")

		redisClient, err = pkgredis.NewClient(ctx, &pkgredis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
		}
		defer redisClient.Close()
		appLog.Info("Redis connected")

		redisLedger := ledger.NewRedisLedger(redisClient)
		if err := redisLedger.LoadScripts(ctx); err != nil {
			appLog.Warn(fmt.Sprintf("Failed to pre-load Lua scripts: %v", err))
		} else {
			appLog.Info("Lua scripts pre-loaded into Redis")
		}
		counters = redisLedger

		eventRepo = repository.NewPostgresEventRepository(db.Pool())
		regRepo = repository.NewPostgresRegistrationRepository(db.Pool())
	} else {
		appLog.Info("Using in-memory backend")
		counters = ledger.NewMemoryLedger()
		eventRepo = repository.NewMemoryEventRepository()
		regRepo = repository.NewMemoryRegistrationRepository()
	}

	// Change event emitter: Kafka behind an async queue, no-op fallback
	var sink emitter.Emitter
	if cfg.Kafka.Enabled {
		kafkaEmitter, err := emitter.NewKafkaEmitter(ctx, &emitter.KafkaEmitterConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.ChangeTopic,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op emitter: %v", err))
			sink = emitter.NewNoOpEmitter()
		} else {
			appLog.Info("Kafka change emitter connected")
			sink = kafkaEmitter
		}
	} else {
		sink = emitter.NewNoOpEmitter()
	}
	changeEmitter := emitter.NewAsyncEmitter(sink, &emitter.AsyncEmitterConfig{
		BufferSize: cfg.Engine.EmitBufferSize,
	})
	defer func() {
		if err := changeEmitter.Close(); err != nil {
			appLog.Error(fmt.Sprintf("Failed to close change emitter: %v", err))
		}
	}()

	// Allocation coordinator and service
	coordinator := allocation.NewCoordinator(counters, eventRepo, regRepo, changeEmitter, &allocation.CoordinatorConfig{
		AllocationTimeout: cfg.Engine.AllocationTimeout,
	})
	registrationService := service.NewRegistrationService(eventRepo, regRepo, counters, coordinator)

	// Background promotion sweeper
	sweeper := worker.NewPromotionSweeper(coordinator, regRepo, &worker.PromotionSweeperConfig{
		SweepInterval: cfg.Engine.SweepInterval,
	})
	if err := sweeper.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start promotion sweeper: %v", err))
	}
	defer sweeper.Stop()

	// HTTP handlers
	regHandler := handler.NewRegistrationHandler(registrationService)
	eventHandler := handler.NewEventHandler(registrationService)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	if !cfg.App.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	authMiddleware := middleware.AuthMiddleware(&middleware.AuthConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": cfg.App.Name,
				"version": cfg.App.Version,
			})
		})

		// Catalog and capacity administration
		v1.POST("/events", eventHandler.CreateEvent)
		v1.POST("/events/:id/tiers", eventHandler.CreateTier)
		v1.POST("/events/:id/waves", eventHandler.CreateWave)
		v1.PATCH("/tiers/:id/capacity", eventHandler.AddTierCapacity)
		v1.PATCH("/waves/:id/capacity", eventHandler.AddWaveCapacity)

		// Advisory availability reads
		v1.GET("/events/:id/availability", eventHandler.GetEventAvailability)
		v1.GET("/tiers/:id/availability", eventHandler.GetTierAvailability)

		// Payment collaborator webhook
		v1.POST("/payments/webhook", regHandler.PaymentWebhook)

		// Check-in scan endpoint
		v1.POST("/registrations/:id/checkin", regHandler.CheckIn)

		// User registration routes behind JWT auth, mutations deduped by
		// idempotency key when Redis is available
		authed := v1.Group("")
		authed.Use(authMiddleware)

		var idempotency gin.HandlerFunc
		if redisClient != nil {
			idemCfg := middleware.DefaultIdempotencyConfig(redisClient)
			idemCfg.SkipPaths = []string{"/health", "/ready"}
			idempotency = middleware.IdempotencyMiddleware(idemCfg)
		} else {
			idempotency = func(c *gin.Context) { c.Next() }
		}

		authed.POST("/events/:id/registrations", idempotency, regHandler.CreateRegistration)
		authed.DELETE("/registrations/:id", idempotency, regHandler.CancelRegistration)
		authed.GET("/registrations", regHandler.ListRegistrations)
		authed.GET("/registrations/:id", regHandler.GetRegistration)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info(fmt.Sprintf("Registration engine listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
}
