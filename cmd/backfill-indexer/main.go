package main

import (
	"context"
	"flag"
	"fmt"
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
	"github.com/haven-markets/haven-indexer/internal/pricing"
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
	cfg, err := config.LoadBackfillConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Cancel on interrupt so a long scan can be stopped cleanly; every write
	// is idempotent, so the next run resumes the work.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "backfill-indexer",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Haven backfill indexer")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize adapters
	clock := adapter.NewClock()
	httpClient := adapter.NewHTTPClient(10 * time.Second)

	// Connect to the chain node
	ethClient, err := adapter.NewEthClientDialer().Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to chain node", zap.Error(err), zap.String("url", cfg.Chain.RPCURL))
	}
	logger.InfoCtx(ctx, "Connected to chain node", zap.String("url", cfg.Chain.RPCURL))

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

	// Build the pipeline
	reconciler := indexer.NewReconciler(dataStore, reader, oracle, clock)
	backfiller := indexer.NewBackfiller(dataStore, reconciler, indexer.BackfillConfig{
		TokenAddresses:  cfg.TokenAddresses,
		WorkerPoolSize:  cfg.Worker.WorkerPoolSize,
		WorkerQueueSize: cfg.Worker.WorkerQueueSize,
	})

	head, err := reader.LatestBlock(ctx)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to get chain head", zap.Error(err))
	}

	if err := backfiller.Run(ctx, head); err != nil {
		logger.FatalCtx(ctx, "Backfill failed", zap.Error(err))
	}

	logger.Info("Backfill complete")
}
