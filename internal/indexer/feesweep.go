package indexer

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/haven-markets/haven-indexer/internal/chain"
	"github.com/haven-markets/haven-indexer/internal/domain"
	"github.com/haven-markets/haven-indexer/internal/logger"
	"github.com/haven-markets/haven-indexer/internal/store"
)

// FeeSweepConfig holds the creator-fee sweep configuration
type FeeSweepConfig struct {
	// Schedule is a cron expression; the default runs every ten minutes
	Schedule string
	// MaxBlocks caps how far one sweep advances the fee cursor
	MaxBlocks uint64
}

// FeeSweeper periodically scans for creator-fee claims behind its own
// watermark. Fee claims are rare and never feed balances or prices, so the
// sweep trades freshness for RPC quota: each run advances the cursor by at
// most MaxBlocks and the watermark may lag the head indefinitely.
type FeeSweeper struct {
	store      store.Store
	cursors    store.CursorStore
	reconciler *Reconciler
	reader     chain.Reader
	chainID    domain.Chain
	config     FeeSweepConfig

	cron *cron.Cron
}

// NewFeeSweeper creates a fee sweeper
func NewFeeSweeper(
	st store.Store,
	cursors store.CursorStore,
	reconciler *Reconciler,
	reader chain.Reader,
	chainID domain.Chain,
	cfg FeeSweepConfig,
) *FeeSweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 10m"
	}
	if cfg.MaxBlocks == 0 {
		cfg.MaxBlocks = domain.FeeSweepMaxBlocks
	}
	return &FeeSweeper{
		store:      st,
		cursors:    cursors,
		reconciler: reconciler,
		reader:     reader,
		chainID:    chainID,
		config:     cfg,
	}
}

// Start schedules the sweep and returns immediately. Stop must be called on
// shutdown.
func (s *FeeSweeper) Start(ctx context.Context) error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("message", "Fee sweep failed"))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule fee sweep: %w", err)
	}

	s.cron.Start()
	logger.InfoCtx(ctx, "Fee sweep scheduled",
		zap.String("schedule", s.config.Schedule),
		zap.Uint64("max_blocks", s.config.MaxBlocks))
	return nil
}

// Stop stops the schedule and waits for a running sweep to finish
func (s *FeeSweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep advances the fee watermark by at most MaxBlocks and records every
// claim found in the covered range. A failed sweep leaves the cursor where it
// was; the next run retries the same range.
func (s *FeeSweeper) Sweep(ctx context.Context) error {
	head, err := s.reader.LatestBlock(ctx)
	if err != nil {
		return err
	}

	cursor, err := s.cursors.GetFeeCursor(ctx, string(s.chainID))
	if err != nil {
		return err
	}
	if cursor == 0 && head > s.config.MaxBlocks {
		// First run: start one window back rather than at genesis.
		cursor = head - s.config.MaxBlocks
	}
	if cursor >= head {
		return nil
	}

	fromBlock := cursor + 1
	toBlock := min(head, cursor+s.config.MaxBlocks)

	tokens, err := s.store.ListTokens(ctx)
	if err != nil {
		return err
	}

	logger.InfoCtx(ctx, "Sweeping creator fees",
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", toBlock),
		zap.Uint64("lag", head-toBlock),
		zap.Int("tokens", len(tokens)))

	for _, token := range tokens {
		if err := s.reconciler.CollectFees(ctx, token, fromBlock, toBlock); err != nil {
			return fmt.Errorf("failed to sweep fees for %s: %w", token.Address, err)
		}
	}

	return s.cursors.SetFeeCursor(ctx, string(s.chainID), toBlock)
}
