package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avoronin/corptravel/api"
	"github.com/avoronin/corptravel/config"
	"github.com/avoronin/corptravel/internal/cache"
	"github.com/avoronin/corptravel/internal/kafka"
	"github.com/avoronin/corptravel/internal/repository"
	"github.com/avoronin/corptravel/internal/service/approval"
	"github.com/avoronin/corptravel/internal/service/execution"
	"github.com/avoronin/corptravel/internal/service/pricing"
	"github.com/avoronin/corptravel/internal/service/request"
	"github.com/avoronin/corptravel/internal/service/settlement"
	"github.com/avoronin/corptravel/internal/supplier"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.QuoteCacheTTLSeconds)*time.Second)
	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	gateway := supplier.NewHTTPGateway(cfg.Supplier)

	requestRepo := repository.NewRequestRepository(pool)
	approvalRepo := repository.NewApprovalRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)

	lockTTL := time.Duration(cfg.Booking.AccountLockTTLSeconds) * time.Second
	requestSvc := request.NewRequestService(requestRepo, ledgerRepo, producer, cfg.Kafka.NotificationsTopic, logger)
	approvalSvc := approval.NewApprovalService(requestRepo, approvalRepo, producer, cfg.Kafka.NotificationsTopic, logger)
	pricingSvc := pricing.NewPricingService(requestRepo, gateway, redisCache, logger)
	settlementSvc := settlement.NewSettlementService(requestRepo, ledgerRepo, redisCache, lockTTL, logger)
	executionSvc := execution.NewExecutionService(requestRepo, ledgerRepo, gateway, settlementSvc, producer, cfg.Kafka.TravelEventsTopic, logger)

	router := gin.Default()
	requests := router.Group("/requests")
	approvals := router.Group("/approvals")
	orgs := router.Group("/orgs")

	requestHandler := api.NewRequestHandler(requestSvc)
	requestHandler.Register(requests)
	requestHandler.RegisterAccounts(orgs)
	api.NewApprovalHandler(approvalSvc).Register(requests, approvals)
	api.NewExecutionHandler(executionSvc, pricingSvc, settlementSvc).Register(requests)

	server := &http.Server{Addr: cfg.HTTP.Address, Handler: router}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown http server", zap.Error(err))
	}
}
