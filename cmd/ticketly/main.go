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

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ticketly/internal/api"
	"ticketly/internal/auth"
	"ticketly/internal/catalog"
	"ticketly/internal/config"
	"ticketly/internal/database/migrations"
	"ticketly/internal/events"
	"ticketly/internal/ledger"
	"ticketly/internal/logger"
	"ticketly/internal/mail"
	"ticketly/internal/points"
	"ticketly/internal/review"
	"ticketly/internal/storage"
	"ticketly/internal/transaction"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- PostgreSQL ---
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("BOOT", fmt.Sprintf("open database: %v", err))
	}
	defer sqldb.Close()
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("BOOT", fmt.Sprintf("connect to database: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
		if err := runner.Up(); err != nil {
			log.Fatal("BOOT", fmt.Sprintf("migrations: %v", err))
		}
		if version, _, err := runner.Version(); err == nil {
			log.Info("BOOT", fmt.Sprintf("schema version %d", version))
		}
	}

	// --- Redis (advisory balance cache, optional) ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("BOOT", fmt.Sprintf("redis unavailable, balance cache disabled: %v", err))
			redisClient = nil
		}
	}

	// --- Kafka ---
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Kafka.Enabled {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publisher = producer
	}

	// --- Services ---
	store := ledger.NewStore(bunDB)
	cache := points.NewCache(redisClient, log)
	calculator := points.NewCalculator(cache)
	uploader := storage.NewHTTPUploader(cfg.Storage.UploadURL, cfg.Storage.Timeout)
	mailer := mail.NewSMTPMailer(cfg.Email)

	trxService := transaction.NewService(store, calculator, uploader, mailer, publisher, log, cfg.Auth.HMACSecret)
	pointsService := points.NewService(store, calculator, log)
	catalogService := catalog.NewService(&catalog.DB{Bun: bunDB}, uploader, log)
	reviewService := review.NewService(store, log)

	verifier, err := buildVerifier(ctx, cfg)
	if err != nil {
		log.Fatal("BOOT", fmt.Sprintf("auth: %v", err))
	}

	handler := api.NewHandler(trxService, pointsService, catalogService, reviewService, log)

	// --- Deadline sweeper ---
	if cfg.Sweeper.Enabled {
		sweeper := transaction.NewSweeper(trxService, cfg.Sweeper.Interval, cfg.Sweeper.BatchSize)
		go sweeper.Run(ctx)
	}

	// --- HTTP server ---
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Routes(verifier),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("BOOT", "ticketly listening on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("BOOT", fmt.Sprintf("http server: %v", err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("BOOT", "shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("BOOT", fmt.Sprintf("forced shutdown: %v", err))
	}
	log.Info("BOOT", "server exited")
}

func buildVerifier(ctx context.Context, cfg *config.Config) (auth.TokenVerifier, error) {
	switch cfg.Auth.Mode {
	case "oidc":
		return auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer)
	default:
		if cfg.Auth.HMACSecret == "" {
			return nil, fmt.Errorf("AUTH_HMAC_SECRET is required in hmac mode")
		}
		return auth.NewHMACVerifier(cfg.Auth.HMACSecret), nil
	}
}
