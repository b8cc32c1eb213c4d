package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avoronin/corptravel/config"
	"github.com/avoronin/corptravel/internal/cache"
	"github.com/avoronin/corptravel/internal/kafka"
	"github.com/avoronin/corptravel/internal/notify"
	"github.com/avoronin/corptravel/internal/repository"
	"github.com/avoronin/corptravel/internal/service/execution"
	"github.com/avoronin/corptravel/internal/service/request"
	"github.com/avoronin/corptravel/internal/service/settlement"
	"github.com/avoronin/corptravel/internal/supplier"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// The worker runs the out-of-process schedules the core relies on: the
// approval-timeout sweep, the ticket-status poll for deferred issuance, and
// the notification consumer.
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Booking.QuoteCacheTTLSeconds)*time.Second)
	gateway := supplier.NewHTTPGateway(cfg.Supplier)

	requestRepo := repository.NewRequestRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)

	lockTTL := time.Duration(cfg.Booking.AccountLockTTLSeconds) * time.Second
	requestSvc := request.NewRequestService(requestRepo, ledgerRepo, producer, cfg.Kafka.NotificationsTopic, logger)
	settlementSvc := settlement.NewSettlementService(requestRepo, ledgerRepo, redisCache, lockTTL, logger)
	executionSvc := execution.NewExecutionService(requestRepo, ledgerRepo, gateway, settlementSvc, producer, cfg.Kafka.TravelEventsTopic, logger)

	// Notification dispatch is fed by both the approval workflow and the
	// execution orchestrator, which publish to separate topics.
	notifConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer notifConsumer.Close()
	travelConsumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.TravelEventsTopic)
	defer travelConsumer.Close()

	sender := notify.NewSender(logger)

	go func() {
		if err := notifConsumer.Consume(ctx, sender.Send); err != nil {
			logger.Warn("notifications consumer stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := travelConsumer.Consume(ctx, sender.Send); err != nil {
			logger.Warn("travel events consumer stopped", zap.Error(err))
		}
	}()

	expireTicker := time.NewTicker(time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute)
	defer expireTicker.Stop()
	pollTicker := time.NewTicker(time.Duration(cfg.Worker.TicketPollMinutes) * time.Minute)
	defer pollTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-expireTicker.C:
			expired, err := requestSvc.ExpirePending(ctx)
			if err != nil {
				logger.Error("expire sweep error", zap.Error(err))
				continue
			}
			if len(expired) > 0 {
				logger.Info("expired pending requests", zap.Int("count", len(expired)))
			}
		case <-pollTicker.C:
			pending, err := requestRepo.ListTicketPending(ctx)
			if err != nil {
				logger.Error("list ticket pending error", zap.Error(err))
				continue
			}
			for _, req := range pending {
				if _, err := executionSvc.PollTicketStatus(ctx, req.Reference); err != nil {
					logger.Warn("ticket poll error", zap.String("reference", req.Reference), zap.Error(err))
				}
			}
		case s := <-sig:
			logger.Info("received signal, shutting down", zap.String("signal", s.String()))
			return
		}
	}
}
