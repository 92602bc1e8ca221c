package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/haven-markets/haven-indexer/internal/adapter"
	"github.com/haven-markets/haven-indexer/internal/config"
	"github.com/haven-markets/haven-indexer/internal/domain"
	"github.com/haven-markets/haven-indexer/internal/logger"
	"github.com/haven-markets/haven-indexer/internal/providers/jetstream"
	"github.com/haven-markets/haven-indexer/internal/store"
)

var (
	configFile   = flag.String("config", "", "Path to configuration file")
	envPath      = flag.String("env", "config/", "Path to environment files")
	tokenAddress = flag.String("token", "", "Token contract address to register")
	curveAddress = flag.String("curve", "", "Bonding curve contract address, if separate from the token")
	creator      = flag.String("creator", "", "Token creator address, if known")
	deployBlock  = flag.Uint64("deploy-block", 0, "Block the token was deployed at")
)

// register-token inserts a token row and announces it on NATS so running
// realtime indexers pick it up without a restart. Intended for manual
// registration of tokens deployed before the indexer was watching.
func main() {
	flag.Parse()

	config.ChdirRepoRoot()
	cfg, err := config.LoadRealtimeConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx := context.Background()

	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "register-token",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	if !common.IsHexAddress(*tokenAddress) {
		logger.FatalCtx(ctx, "Invalid or missing -token address", zap.String("token", *tokenAddress))
	}
	if *curveAddress != "" && !common.IsHexAddress(*curveAddress) {
		logger.FatalCtx(ctx, "Invalid -curve address", zap.String("curve", *curveAddress))
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}
	dataStore := store.NewPGStore(db)

	token := &domain.Token{
		Address:             domain.NormalizeAddress(*tokenAddress),
		BondingCurveAddress: domain.NormalizeAddress(*curveAddress),
		CreatorAddress:      domain.NormalizeAddress(*creator),
		DeployBlock:         *deployBlock,
	}
	created, err := dataStore.CreateToken(ctx, token)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create token", zap.Error(err), zap.String("token", token.Address))
	}
	if !created {
		logger.InfoCtx(ctx, "Token already registered", zap.String("token", token.Address))
		return
	}
	logger.InfoCtx(ctx, "Token registered",
		zap.String("token", token.Address),
		zap.Uint64("deployBlock", token.DeployBlock))

	// Announce on NATS so running realtime indexers start tracking it now
	if cfg.NATS.URL == "" {
		logger.WarnCtx(ctx, "NATS not configured, running indexers will pick the token up on restart")
		return
	}
	publisher, err := jetstream.NewPublisher(jetstream.Config{
		URL:            cfg.NATS.URL,
		StreamName:     cfg.NATS.StreamName,
		ConsumerName:   cfg.NATS.ConsumerName,
		MaxReconnects:  cfg.NATS.MaxReconnects,
		ReconnectWait:  cfg.NATS.ReconnectWait,
		ConnectionName: "register-token",
		AckWaitTimeout: cfg.NATS.AckWait,
		MaxDeliver:     cfg.NATS.MaxDeliver,
	}, adapter.NewNatsJetStream(), adapter.NewJSON())
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
	}
	defer publisher.Close()

	if err := publisher.PublishTokenCreated(ctx, &domain.TokenCreated{
		Address:     token.Address,
		DeployBlock: token.DeployBlock,
	}); err != nil {
		logger.FatalCtx(ctx, "Failed to publish token creation", zap.Error(err), zap.String("token", token.Address))
	}
	logger.InfoCtx(ctx, "Token creation announced", zap.String("token", token.Address))
}
