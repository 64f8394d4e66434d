package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexxgorcea9/primepass/internal/allocation"
	"github.com/alexxgorcea9/primepass/internal/emitter"
	"github.com/alexxgorcea9/primepass/internal/ledger"
	"github.com/alexxgorcea9/primepass/internal/repository"
	"github.com/alexxgorcea9/primepass/internal/service"
	"github.com/alexxgorcea9/primepass/internal/worker"
	"github.com/alexxgorcea9/primepass/pkg/config"
	"github.com/alexxgorcea9/primepass/pkg/database"
	"github.com/alexxgorcea9/primepass/pkg/logger"
	pkgredis "github.com/alexxgorcea9/primepass/pkg/redis"
)

// The payment worker consumes payment updates from Kafka and applies them to
// registrations, sharing the server's ledger and repositories so a failed
// payment frees capacity and promotes waitlisted registrations.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       "info",
		ServiceName: cfg.App.Name + "-payment-worker",
		Development: cfg.App.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting payment worker...")

	if cfg.Engine.Backend != "redis" {
		appLog.Fatal("payment worker requires the redis backend: the memory backend is process local")
	}
	if !cfg.Kafka.Enabled {
		appLog.Fatal("payment worker requires Kafka")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		User:           cfg.Database.User,
		Password:       cfg.Database.Password,
		Database:       cfg.Database.DBName,
		SSLMode:        cfg.Database.SSLMode,
		MaxConns:       20,
		MinConns:       2,
		ConnectTimeout: 5 * time.Second,
		MaxRetries:     3,
		RetryInterval:  time.Second,
		EnableTracing:  cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()

	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
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

	redisLedger := ledger.NewRedisLedger(redisClient)
	if err := redisLedger.LoadScripts(ctx); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to pre-load Lua scripts: %v", err))
	}

	eventRepo := repository.NewPostgresEventRepository(db.Pool())
	regRepo := repository.NewPostgresRegistrationRepository(db.Pool())

	// Cancellations driven by payment failures emit change events too
	var sink emitter.Emitter
	kafkaEmitter, err := emitter.NewKafkaEmitter(ctx, &emitter.KafkaEmitterConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.ChangeTopic,
		ClientID: cfg.Kafka.ClientID + "-payment-worker",
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Kafka emitter connection failed, using no-op emitter: %v", err))
		sink = emitter.NewNoOpEmitter()
	} else {
		sink = kafkaEmitter
	}
	changeEmitter := emitter.NewAsyncEmitter(sink, &emitter.AsyncEmitterConfig{
		BufferSize: cfg.Engine.EmitBufferSize,
	})
	defer func() {
		if err := changeEmitter.Close(); err != nil {
			appLog.Error(fmt.Sprintf("Failed to close change emitter: %v", err))
		}
	}()

	coordinator := allocation.NewCoordinator(redisLedger, eventRepo, regRepo, changeEmitter, &allocation.CoordinatorConfig{
		AllocationTimeout: cfg.Engine.AllocationTimeout,
	})
	registrationService := service.NewRegistrationService(eventRepo, regRepo, redisLedger, coordinator)

	consumer, err := worker.NewPaymentConsumer(ctx, registrationService, &worker.PaymentConsumerConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.PaymentTopic,
		GroupID:  cfg.Kafka.ConsumerGroup + "-payment",
		ClientID: cfg.Kafka.ClientID + "-payment-worker",
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to create payment consumer: %v", err))
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		appLog.Info("Shutting down payment worker...")
		consumer.Stop()
		cancel()
	}()

	if err := consumer.Start(ctx); err != nil && err != context.Canceled {
		appLog.Error(fmt.Sprintf("Payment consumer stopped: %v", err))
	}

	appLog.Info("Payment worker exited")
}
