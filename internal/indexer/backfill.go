package indexer

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/haven-markets/haven-indexer/internal/domain"
	"github.com/haven-markets/haven-indexer/internal/logger"
	"github.com/haven-markets/haven-indexer/internal/store"
)

const (
	defaultBackfillPoolSize  = 8
	defaultBackfillQueueSize = 1024
)

// BackfillConfig holds the backfill run configuration
type BackfillConfig struct {
	// TokenAddresses limits the run to specific tokens; empty means all
	TokenAddresses []string
	// WorkerPoolSize is the number of tokens reconciled concurrently
	WorkerPoolSize int
	// WorkerQueueSize bounds the pending token queue
	WorkerQueueSize int
}

// Backfiller reconciles every tracked token from its deploy block to the
// current head. Tokens are independent, so they run on a worker pool and one
// token's failure never stops the rest.
type Backfiller struct {
	store      store.Store
	reconciler *Reconciler
	config     BackfillConfig
}

// NewBackfiller creates a backfill run over the given store and reconciler
func NewBackfiller(st store.Store, reconciler *Reconciler, cfg BackfillConfig) *Backfiller {
	if cfg.WorkerPoolSize == 0 {
		cfg.WorkerPoolSize = defaultBackfillPoolSize
	}
	if cfg.WorkerQueueSize == 0 {
		cfg.WorkerQueueSize = defaultBackfillQueueSize
	}
	return &Backfiller{
		store:      st,
		reconciler: reconciler,
		config:     cfg,
	}
}

// Run reconciles the selected tokens up to the given head block. It returns
// an error only when the run could not start or every token failed; per-token
// failures are logged and counted.
func (b *Backfiller) Run(ctx context.Context, headBlock uint64) error {
	tokens, err := b.selectTokens(ctx)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		logger.InfoCtx(ctx, "No tokens to backfill")
		return nil
	}

	logger.InfoCtx(ctx, "Starting backfill",
		zap.Int("tokens", len(tokens)),
		zap.Uint64("head_block", headBlock),
		zap.Int("workers", b.config.WorkerPoolSize))

	pool := pond.NewPool(
		b.config.WorkerPoolSize,
		pond.WithQueueSize(b.config.WorkerQueueSize),
		pond.WithContext(ctx),
	)

	for _, token := range tokens {
		token := token
		pool.Submit(func() {
			if err := b.backfillToken(ctx, token, headBlock); err != nil {
				logger.ErrorCtx(ctx, err, zap.String("token", token.Address))
			}
		})
	}

	pool.StopAndWait()

	logger.InfoCtx(ctx, "Backfill complete",
		zap.Uint64("submitted", pool.SubmittedTasks()),
		zap.Uint64("successful", pool.SuccessfulTasks()),
		zap.Uint64("failed", pool.FailedTasks()))

	if pool.SuccessfulTasks() == 0 && pool.SubmittedTasks() > 0 {
		return fmt.Errorf("backfill failed for all %d tokens", pool.SubmittedTasks())
	}

	return nil
}

func (b *Backfiller) selectTokens(ctx context.Context) ([]*domain.Token, error) {
	if len(b.config.TokenAddresses) == 0 {
		return b.store.ListTokens(ctx)
	}

	tokens := make([]*domain.Token, 0, len(b.config.TokenAddresses))
	for _, addr := range b.config.TokenAddresses {
		token, err := b.store.GetToken(ctx, addr)
		if err != nil {
			return nil, err
		}
		if token == nil {
			logger.WarnCtx(ctx, "Skipping unknown token", zap.String("token", addr))
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// backfillToken reconciles one token over its full history, fees included.
func (b *Backfiller) backfillToken(ctx context.Context, token *domain.Token, headBlock uint64) error {
	fromBlock := token.DeployBlock
	if fromBlock == 0 && headBlock > domain.StartupBackfillBlocks {
		// Unknown deploy block; scan a recent window rather than genesis.
		fromBlock = headBlock - domain.StartupBackfillBlocks
	}

	logger.InfoCtx(ctx, "Backfilling token",
		zap.String("token", token.Address),
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", headBlock))

	if err := b.reconciler.ReconcileRange(ctx, token, fromBlock, headBlock); err != nil {
		return fmt.Errorf("failed to backfill %s: %w", token.Address, err)
	}

	return b.reconciler.CollectFees(ctx, token, fromBlock, headBlock)
}
