package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"achrilik/config"
	"achrilik/consumers"
	"achrilik/database"
	"achrilik/rabbitmq"
	"achrilik/repository"
	"achrilik/routes"
	"achrilik/services"

	"github.com/gin-gonic/gin"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.LoadConfig()

	if err := database.InitDB(cfg); err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}
	defer database.CloseDB()

	rmq, err := rabbitmq.NewRabbitMQ(cfg)
	if err != nil {
		log.Fatalf("RabbitMQ initialization failed: %v", err)
	}
	defer rmq.Close()

	if err := rmq.SetupQueues(); err != nil {
		log.Fatalf("Failed to setup RabbitMQ queues: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumers.StartNotificationConsumer(ctx, rmq.Channel, cfg, consumers.LogMailer{Log: logger}, logger); err != nil {
		log.Fatalf("Failed to start notification consumer: %v", err)
	}

	db := database.DB
	orders := repository.NewOrderRepository(db)
	deliveries := repository.NewDeliveryRepository(db)
	agents := repository.NewAgentRepository(db)
	commissions := repository.NewCommissionRepository(db, cfg.DefaultCommissionRate)
	dispatch := services.NewDispatcher(logger)

	svc := routes.Services{
		Orders:     services.NewOrderService(db, orders, deliveries, commissions, rmq, dispatch, logger),
		Deliveries: services.NewDeliveryService(db, orders, deliveries, agents, agents, rmq, rmq, dispatch, logger),
		Ledger:     services.NewLedgerService(db, commissions, rmq, dispatch, logger),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	routes.RegisterRoutes(r, cfg.JWTSecret, cfg.CORSOrigins, svc)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("marketplace service starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	// Let in-flight notifications and events reach the broker.
	dispatch.Wait()
}
