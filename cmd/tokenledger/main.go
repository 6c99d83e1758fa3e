package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aidin1998/tokenledger/api"
	"github.com/Aidin1998/tokenledger/common/apiutil"
	"github.com/Aidin1998/tokenledger/internal/config"
	"github.com/Aidin1998/tokenledger/internal/database"
	"github.com/Aidin1998/tokenledger/internal/outbox"
	"github.com/Aidin1998/tokenledger/internal/telemetry"
	"github.com/Aidin1998/tokenledger/internal/tokensale/ledger"
	"github.com/Aidin1998/tokenledger/internal/tokensale/market"
	"github.com/Aidin1998/tokenledger/internal/tokensale/marketdata"
	"github.com/Aidin1998/tokenledger/internal/tokensale/pricing"
	"github.com/Aidin1998/tokenledger/internal/tokensale/purchase"
	"github.com/Aidin1998/tokenledger/internal/tokensale/sale"
	"github.com/Aidin1998/tokenledger/internal/wallet"
	"github.com/Aidin1998/tokenledger/internal/wallet/blockchain"
	"github.com/Aidin1998/tokenledger/pkg/logger"
	"github.com/Aidin1998/tokenledger/pkg/validation"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const serviceName = "tokenledger"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	logLevel := os.Getenv(config.EnvPrefix + "_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(serviceName, logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	cfg, err := config.Load(zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Auth.JWTSecret == "" {
		zapLogger.Fatal("auth.jwt_secret must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, serviceName, cfg.Telemetry, nil)
	if err != nil {
		zapLogger.Fatal("Failed to set up telemetry", zap.Error(err))
	}

	db, err := database.Open(cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			zapLogger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	go database.ReportPoolStats(ctx, db, cfg.Database.Driver, 30*time.Second, zapLogger)

	store := ledger.NewStore(db, cfg.Database.TxMaxRetries, zapLogger)
	if _, err := sale.Bootstrap(ctx, store, cfg.Sale, zapLogger); err != nil {
		zapLogger.Fatal("Failed to bootstrap sale", zap.Error(err))
	}

	rdb, err := database.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	validator := validation.NewValidator()
	quoter := pricing.NewQuoter(cfg.Sale.DemandWindow)
	marketData := marketdata.NewService(store, quoter, cfg.Sale.ID, cfg.MarketData.Intervals, cfg.MarketData.MaxRetries, zapLogger)

	hub := marketdata.NewHub(100, zapLogger)
	go hub.Run(ctx)
	if rdb != nil {
		// ticks fan out through redis so every replica's stream clients see them
		marketData.SetPublisher(marketdata.NewRedisPublisher(rdb, cfg.MarketData.Channel))
		go marketdata.RelayToHub(ctx, rdb, cfg.MarketData.Channel, hub, zapLogger)
	} else {
		marketData.SetPublisher(hub)
	}

	services := api.Services{
		Sale:       sale.NewService(store, quoter, cfg.Sale.ID, cfg.Sale.DividendPool, zapLogger),
		Purchases:  purchase.NewService(store, quoter, marketData, validator, cfg.Sale.ID, cfg.Sale.LockPeriod, zapLogger),
		Market:     market.NewService(store, quoter, marketData, cfg.Sale.ID, cfg.Sale.EarlyUnlockFee, zapLogger),
		MarketData: marketData,
		Hub:        hub,
		Addresses:  wallet.NewRegistry(store, cfg.Watcher, zapLogger),
		Ready: func(ctx context.Context) error {
			if err := database.Ping(ctx, db); err != nil {
				return err
			}
			if rdb != nil {
				return rdb.Ping(ctx).Err()
			}
			return nil
		},
	}

	if cfg.Watcher.Enabled {
		chain, err := blockchain.DialEVM(ctx, cfg.Watcher.RPCURL, cfg.Watcher.RPCTimeout, cfg.Watcher.RPCRatePerSecond, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to chain RPC", zap.Error(err))
		}
		var lease wallet.Lease
		if rdb != nil {
			lease = wallet.NewRedisLease(rdb, serviceName+":watcher:lease")
		}
		go wallet.NewWatcher(store, chain, cfg.Watcher, lease, zapLogger).Run(ctx)
	}

	var (
		publisher outbox.Publisher
		notifier  outbox.Notifier
	)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := outbox.NewKafkaPublisher(cfg.Kafka.Brokers, zapLogger)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}
	if rdb != nil {
		notifier = outbox.NewRedisNotifier(rdb, serviceName+":user:")
	}
	go outbox.NewDrainer(store.Repos().Outbox, publisher, notifier, nil, cfg.Outbox, zapLogger).Run(ctx)

	limiter, err := apiutil.NewRateLimiter(cfg.Server.RateLimit, rdb, zapLogger.Named("ratelimit"))
	if err != nil {
		zapLogger.Fatal("Failed to create rate limiter", zap.Error(err))
	}
	server := api.NewServer(cfg.Server, cfg.Auth, services, validator, limiter, zapLogger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		zapLogger.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			zapLogger.Error("API server stopped", zap.Error(err))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shut down API server", zap.Error(err))
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		zapLogger.Error("Failed to flush telemetry", zap.Error(err))
	}
	zapLogger.Info("Stopped")
}
