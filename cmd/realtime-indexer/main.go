package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/haven-markets/haven-indexer/internal/adapter"
	"github.com/haven-markets/haven-indexer/internal/block"
	"github.com/haven-markets/haven-indexer/internal/chain"
	"github.com/haven-markets/haven-indexer/internal/config"
	"github.com/haven-markets/haven-indexer/internal/indexer"
	"github.com/haven-markets/haven-indexer/internal/logger"
	"github.com/haven-markets/haven-indexer/internal/messaging"
	"github.com/haven-markets/haven-indexer/internal/pricing"
	"github.com/haven-markets/haven-indexer/internal/providers/jetstream"
	"github.com/haven-markets/haven-indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadRealtimeConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "realtime-indexer",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Haven realtime indexer")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}

	// Initialize stores
	dataStore := store.NewPGStore(db)
	cursorStore := store.NewCursorStore(db)

	// Initialize adapters
	clock := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()
	httpClient := adapter.NewHTTPClient(10 * time.Second)

	// Connect to the chain node over websocket for head subscriptions
	nodeURL := cfg.Chain.WebSocketURL
	if nodeURL == "" {
		nodeURL = cfg.Chain.RPCURL
	}
	ethClient, err := adapter.NewEthClientDialer().Dial(ctx, nodeURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to chain node", zap.Error(err), zap.String("url", nodeURL))
	}
	logger.InfoCtx(ctx, "Connected to chain node", zap.String("url", nodeURL))

	// Build the chain reader and price oracle
	blocks := block.NewBlockProvider(chain.NewBlockFetcher(ethClient), block.Config{
		HeadTTL:     cfg.Chain.BlockHeadTTL,
		StaleWindow: cfg.Chain.BlockHeadStaleWindow,
	}, clock)
	reader := chain.NewReader(ethClient, blocks, chain.Config{
		MaxBlockSpan: cfg.Chain.MaxBlockSpan,
	})
	defer reader.Close()

	oracle := pricing.NewOracle(reader, httpClient, clock, pricing.Config{
		ReferencePair: cfg.Pricing.ReferencePair,
		WBNBAddress:   cfg.Pricing.WBNBAddress,
		PriceAPIURL:   cfg.Pricing.PriceAPIURL,
		TTL:           cfg.Pricing.CacheTTL,
	})

	// Subscribe to token creation announcements when NATS is configured
	var subscriber messaging.Subscriber
	if cfg.NATS.URL != "" {
		subscriber, err = jetstream.NewSubscriber(jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			ConsumerName:   cfg.NATS.ConsumerName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
			AckWaitTimeout: cfg.NATS.AckWait,
			MaxDeliver:     cfg.NATS.MaxDeliver,
		}, adapter.NewNatsJetStream(), jsonAdapter)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		defer subscriber.Close()
	} else {
		logger.WarnCtx(ctx, "NATS not configured, new tokens are picked up on restart only")
	}

	// Build the pipeline
	reconciler := indexer.NewReconciler(dataStore, reader, oracle, clock)
	realtime := indexer.NewRealtime(dataStore, cursorStore, reconciler, reader, subscriber, indexer.RealtimeConfig{
		ChainID:               cfg.Chain.ChainID,
		StartupBackfillBlocks: cfg.StartupBackfillBlocks,
		WorkerPoolSize:        cfg.Worker.WorkerPoolSize,
		WorkerQueueSize:       cfg.Worker.WorkerQueueSize,
	})

	// Start the creator-fee sweep on its own schedule
	feeSweeper := indexer.NewFeeSweeper(dataStore, cursorStore, reconciler, reader, cfg.Chain.ChainID, indexer.FeeSweepConfig{
		Schedule:  cfg.FeeSweep.Schedule,
		MaxBlocks: cfg.FeeSweep.MaxBlocks,
	})
	if err := feeSweeper.Start(ctx); err != nil {
		logger.FatalCtx(ctx, "Failed to start fee sweeper", zap.Error(err))
	}
	defer feeSweeper.Stop()

	// Run the indexer in a goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- realtime.Run(ctx)
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			logger.ErrorCtx(ctx, err, zap.String("component", "realtime-indexer"))
		}
		cancel()
	}

	logger.Info("Realtime indexer stopped")
}
