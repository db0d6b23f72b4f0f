// Package main is the entry point for the ledger API.
// It wires storage, notifications and metrics, starts the escrow sweeper
// and serves HTTP until interrupted.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusmarket/internal/config"
	"campusmarket/internal/logging"
	"campusmarket/internal/metrics"
	"campusmarket/internal/models"
	"campusmarket/internal/repositories"
	"campusmarket/internal/repositories/cache"
	"campusmarket/internal/routes"
	"campusmarket/internal/services/audit"
	"campusmarket/internal/services/auth"
	"campusmarket/internal/services/dispute"
	"campusmarket/internal/services/escrow"
	"campusmarket/internal/services/listing"
	"campusmarket/internal/services/notification"
	"campusmarket/internal/services/payment"
	"campusmarket/internal/services/transaction"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	config.LoadEnv()

	env := config.GetEnv("ENV", "development")
	log := logging.Setup("campusmarket-ledger", env, config.LoadLogging())

	serverCfg := config.LoadServer()
	if serverCfg.JWTSecret == "" {
		log.Error("JWT_SECRET must be set")
		os.Exit(1)
	}
	escrowCfg := config.LoadEscrow()

	if err := repositories.InitDB(config.LoadDatabase()); err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	db := repositories.DB
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheus(reg)

	var (
		redisClient redis.UniversalClient
		lease       cache.Lease           = cache.LocalLease{}
		changes     cache.ChangePublisher = cache.NopChangePublisher{}
	)
	if redisCfg := config.LoadRedis(); redisCfg.Enabled {
		client := cache.NewRedisClient(redisCfg)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := cache.HealthCheck(ctx, client)
		cancel()
		if err != nil {
			log.Warn("redis unavailable, running without lease and realtime changes", "error", err)
			_ = client.Close()
		} else {
			redisClient = client
			lease = cache.NewRedisLease(client)
			changes = cache.NewRedisChangePublisher(client)
			defer client.Close()
		}
	}

	var notifier notification.Emitter = notification.NewLogEmitter(log)
	if kafkaCfg := config.LoadKafka(); kafkaCfg.Enabled() {
		emitter, err := notification.NewKafkaEmitter(kafkaCfg, log, collector)
		if err != nil {
			log.Error("kafka emitter init failed", "error", err)
			os.Exit(1)
		}
		defer emitter.Close()
		notifier = emitter
	}

	store := repositories.NewStore(db)
	recorder := audit.NewRecorder(db, log, collector)
	authz := escrow.NewOperatorAuthorizer(store.Operators, escrowCfg.SystemActorID)
	listings := listing.NewGormStore(store.Listings)

	txService := transaction.NewService(store, listings, recorder, authz, transaction.ConfigFrom(escrowCfg),
		transaction.WithLogger(log),
		transaction.WithMetrics(collector),
	)

	escrowOpts := escrow.DefaultConfig()
	escrowOpts.SystemActorID = escrowCfg.SystemActorID
	escrowOpts.Currency = escrowCfg.Currency
	escrowService := escrow.NewService(store, recorder, authz, notifier, escrowOpts,
		escrow.WithLogger(log),
		escrow.WithMetrics(collector),
		escrow.WithListings(listings),
		escrow.WithChangePublisher(changes),
	)
	disputeService := dispute.NewService(store, escrowService, recorder, notifier,
		dispute.WithLogger(log),
		dispute.WithMetrics(collector),
		dispute.WithChangePublisher(changes),
	)

	verifier := payment.NewRouter(payment.TrustedVerifier{})
	if serverCfg.StripeKey != "" {
		verifier.Register(models.PaymentMethodStripe, payment.NewStripeVerifier(serverCfg.StripeKey, escrowCfg.Currency))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := escrow.NewSweeper(escrowService, store, lease, escrowCfg)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(ctx)
	}()

	app := fiber.New(fiber.Config{
		AppName:      "campusmarket-ledger",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: serverCfg.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
	}))
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		Output: slog.NewLogLogger(log.Handler(), slog.LevelInfo).Writer(),
	}))

	routes.SetupRoutes(app, routes.Deps{
		DB:             db,
		Redis:          redisClient,
		Gatherer:       reg,
		Auth:           auth.NewService(store.Operators, serverCfg.JWTSecret, serverCfg.TokenTTL, log),
		Transactions:   txService,
		Escrow:         escrowService,
		Disputes:       disputeService,
		Verifier:       verifier,
		AuditQueries:   audit.NewQueries(store.Audit, escrowCfg.SystemActorID),
		Logger:         log,
		LoginLimit:     serverCfg.RateLimitMax,
		LoginLimitSpan: serverCfg.RateLimitSpan,
	})

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(":" + serverCfg.Port)
	}()
	log.Info("ledger api started", "port", serverCfg.Port)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-listenErr:
		if err != nil {
			log.Error("server stopped", "error", err)
		}
		stop()
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	<-sweepDone
}
