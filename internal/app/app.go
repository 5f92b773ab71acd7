package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/anchor-platform/internal/api"
	"github.com/ayo6706/anchor-platform/internal/api/handler"
	"github.com/ayo6706/anchor-platform/internal/api/middleware"
	"github.com/ayo6706/anchor-platform/internal/asset"
	"github.com/ayo6706/anchor-platform/internal/config"
	"github.com/ayo6706/anchor-platform/internal/custody"
	"github.com/ayo6706/anchor-platform/internal/customer"
	"github.com/ayo6706/anchor-platform/internal/db"
	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/ayo6706/anchor-platform/internal/event"
	"github.com/ayo6706/anchor-platform/internal/idempotency"
	"github.com/ayo6706/anchor-platform/internal/ledger"
	"github.com/ayo6706/anchor-platform/internal/lock"
	"github.com/ayo6706/anchor-platform/internal/observability"
	"github.com/ayo6706/anchor-platform/internal/repository"
	"github.com/ayo6706/anchor-platform/internal/service"
	"github.com/ayo6706/anchor-platform/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	eventSessionName = "platform-rpc"
	callbackTimeout  = 10 * time.Second
)

// Run bootstraps the RPC server and trustline worker, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	assets, err := asset.Load(cfg.AssetsFile)
	if err != nil {
		return fmt.Errorf("load assets: %w", err)
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		return fmt.Errorf("init event publisher: %w", err)
	}
	events := event.NewService(publisher)
	defer events.Close()

	store := repository.NewStore(pool)
	engine, err := newEngine(cfg, store, assets, events, redisClient)
	if err != nil {
		return err
	}

	trustlines := service.NewTrustlineService(engine, cfg.TrustlineCheckTimeout)
	trustWorker := worker.NewTrustlineWorker(trustlines).WithPollInterval(cfg.TrustlineCheckInterval)
	stopWorker := trustWorker.Run(ctx)
	logger.Info("trustline worker started", zap.Stringer("worker", trustWorker))

	idemStore := idempotency.NewStore(redisClient, cfg.IdempotencyTTL)
	health := handler.NewHealthHandler(store, idemStore)
	router := api.NewRouter(cfg, logger, service.NewRPCService(engine, cfg.RPCBatchSizeLimit), idemStore, health)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping trustline worker")
	stopWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newEngine(cfg *config.Config, store service.QueryStore, assets *asset.Registry, events *event.Service, redisClient *redis.Client) (*service.Engine, error) {
	generators := make(map[domain.Protocol]service.DepositInfoGenerator, 3)
	for protocol, kind := range map[domain.Protocol]string{
		domain.ProtocolSEP6:  cfg.DepositInfoGeneratorSep6,
		domain.ProtocolSEP24: cfg.DepositInfoGeneratorSep24,
		domain.ProtocolSEP31: cfg.DepositInfoGeneratorSep31,
	} {
		gen, err := service.NewDepositInfoGenerator(kind, assets, cfg.DistributionAccount)
		if err != nil {
			return nil, fmt.Errorf("deposit info generator for sep %s: %w", protocol, err)
		}
		generators[protocol] = gen
	}

	lockOpts := lock.DefaultOptions()
	if cfg.LockExpiry > 0 {
		lockOpts.Expiry = cfg.LockExpiry
	}

	deps := service.Dependencies{
		Store:       store,
		Assets:      assets,
		Ledger:      ledger.NewClient(cfg.HorizonURL, cfg.HorizonTimeout),
		Events:      events.CreateSession(eventSessionName, event.QueueTransaction),
		Locker:      lock.NewRedisLocker(redisClient, lockOpts),
		CustodyType: cfg.CustodyType,
		DepositInfo: generators,
	}
	if cfg.CustodyEnabled() {
		deps.Custody = custody.NewClient(cfg.CustodyURL, cfg.CustodyTimeout)
	}
	if cfg.CallbackAPIURL != "" {
		deps.Customers = customer.NewClient(cfg.CallbackAPIURL, callbackTimeout)
	}
	return service.NewEngine(deps), nil
}

func newPublisher(cfg *config.Config) (event.Publisher, error) {
	switch cfg.EventPublisherType {
	case config.PublisherAMQP:
		return event.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	case config.PublisherMemory, "":
		return event.NewMemoryPublisher(), nil
	default:
		return nil, fmt.Errorf("unsupported event publisher type %q", cfg.EventPublisherType)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
