package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ridepay/internal/config"
	"ridepay/internal/gateway/chapa"
	"ridepay/internal/handler"
	"ridepay/internal/infrastructure/cache"
	"ridepay/internal/infrastructure/database"
	"ridepay/internal/infrastructure/lock"
	"ridepay/internal/infrastructure/logger"
	"ridepay/internal/infrastructure/mq"
	"ridepay/internal/job"
	"ridepay/internal/notify"
	"ridepay/internal/repository"
	"ridepay/internal/service"
	"ridepay/pkg/idgen"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadConfig("config/config.yaml")
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	log := logger.New(&cfg.Log)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		log.WithError(err).Fatal("init id generator")
	}

	db, err := database.Init(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("init database")
	}

	rdb, err := cache.InitRedis(&cfg.Redis, log)
	if err != nil {
		log.WithError(err).Fatal("init redis")
	}
	defer rdb.Close()

	relay := notify.NewRedisRelay(rdb, log)
	gateway := chapa.NewClient(chapa.Config{
		BaseURL:   cfg.Chapa.BaseURL,
		SecretKey: cfg.Chapa.SecretKey,
		Timeout:   cfg.Chapa.Timeout,
	}, log)

	wallets := service.NewWalletService(db, cfg, log)
	deposits := service.NewDepositService(db, cfg, gateway, lock.NewRedisProvider(rdb), relay, log)
	withdrawals := service.NewWithdrawalService(db, cfg, relay, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconciler := job.NewPendingDepositJob(deposits, log)
	go reconciler.Start(ctx)

	if cfg.Kafka.Enabled {
		publisher, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			log.WithError(err).Fatal("init kafka")
		}
		defer publisher.Close()

		sender := job.NewOutboxSender(repository.NewOutboxRepository(db), publisher, cfg.Kafka.MaxRetryCount, log)
		go sender.Start(ctx)
	} else {
		log.Info("kafka disabled, outbox sender not started")
	}

	router, err := handler.SetupRouter(cfg, log, handler.NewHandler(cfg, log, wallets, deposits, withdrawals, relay))
	if err != nil {
		log.WithError(err).Fatal("setup router")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	// Stops the background jobs and ends open event streams.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}

	log.Info("server stopped")
}
