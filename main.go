package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-reconcile/internal/auth"
	"ms-reconcile/internal/config"
	"ms-reconcile/internal/database/migrations"
	"ms-reconcile/internal/kafka"
	"ms-reconcile/internal/ledger"
	"ms-reconcile/internal/logger"
	"ms-reconcile/internal/order"
	"ms-reconcile/internal/order/db"
	rediswrap "ms-reconcile/internal/order/redis"
	"ms-reconcile/internal/recon"
	"ms-reconcile/internal/recon/recon_api"
	"ms-reconcile/internal/verify"
	"ms-reconcile/internal/worker"
)

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	if cfg.Database.DSN == "" {
		logger.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Reconciliation Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
			MigrationsDir: cfg.Database.MigrationsDir,
			AutoMigrate:   true,
		})
		if err := runner.Up(); err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
		}
		logger.Info("DATABASE", "Schema migrations applied")
	}

	logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers: %v", cfg.Kafka.Brokers))
	kafkaProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics)
	defer kafkaProducer.Close()
	logger.Info("KAFKA", "Kafka producer initialized successfully")

	requiredTopics := []string{
		cfg.Kafka.Topics.OrderFinalized,
		cfg.Kafka.Topics.OrderCancelled,
		cfg.Kafka.Topics.LedgerShortfall,
	}
	if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
		logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	} else {
		logger.Info("KAFKA", "Required topics ensured successfully")
	}

	gatewayClient := &http.Client{
		Timeout: cfg.Gateways.VerifyTimeout,
	}

	registry := verify.NewRegistry(
		verify.NewRazorpay(cfg.Gateways.Razorpay, gatewayClient, logger),
		verify.NewPhonePe(cfg.Gateways.PhonePe, gatewayClient, logger),
	)

	store := &db.DB{Bun: bunDB}
	finalizer := order.NewFinalizerService(
		order.NewDBLayer(store),
		rediswrap.NewRedis(redisClient, cfg.Redis.FinalizeLockTTL),
		kafkaProducer,
		ledger.NewLedger(logger),
		logger,
	)

	reconService := recon.NewService(registry, finalizer, logger)
	handler := recon_api.NewHandler(reconService, store, logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	// Webhook and callback requests authenticate themselves cryptographically:
	// the verifier layer rejects anything the gateway did not sign.
	r.Post("/api/payments/webhook", handler.HandleWebhook)
	r.Get("/api/payments/callback", handler.HandleCallback)
	r.Get("/api/orders/{orderId}", handler.GetOrder)
	logger.Info("ROUTER", "Payment ingestion endpoints registered under /api/payments")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		logger.Info("AUTH", "JWT middleware applied to operator API routes")

		r.Get("/api/payments/{orderId}/status", handler.PollStatus)
		r.Get("/api/ledger/shortfalls", handler.ListShortfalls)
		logger.Info("ROUTER", "Operator routes registered")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var reconWorker *worker.Worker
	if cfg.Worker.Enabled {
		reconWorker = worker.NewWorker(store, reconService, logger, cfg.Worker.PollInterval, cfg.Worker.PendingAge)
		reconWorker.Start()
	} else {
		logger.Info("WORKER", "Reconciliation worker disabled by configuration")
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("🚀 Reconciliation Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	if reconWorker != nil {
		reconWorker.Stop()
	}

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "✅ Reconciliation Service shutdown complete")
	}
}
