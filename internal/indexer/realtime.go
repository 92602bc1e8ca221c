package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/haven-markets/haven-indexer/internal/chain"
	"github.com/haven-markets/haven-indexer/internal/domain"
	"github.com/haven-markets/haven-indexer/internal/logger"
	"github.com/haven-markets/haven-indexer/internal/messaging"
	"github.com/haven-markets/haven-indexer/internal/store"
)

// RealtimeConfig holds the realtime indexer configuration
type RealtimeConfig struct {
	ChainID domain.Chain
	// StartupBackfillBlocks is how far behind the head the indexer rescans
	// on boot when no cursor exists
	StartupBackfillBlocks uint64
	// WorkerPoolSize is the number of tokens reconciled concurrently per cycle
	WorkerPoolSize int
	// WorkerQueueSize bounds the pending token queue
	WorkerQueueSize int
}

// Realtime tails the chain head and reconciles every tracked token over each
// new block range. The shared block cursor advances once a pass completes;
// a token that fails keeps its own retry watermark below the failed range
// and is repaired on a later pass. Every write is idempotent, so replays
// converge.
type Realtime struct {
	store      store.Store
	cursors    store.CursorStore
	reconciler *Reconciler
	reader     chain.Reader
	subscriber messaging.Subscriber
	config     RealtimeConfig
}

// NewRealtime creates a realtime indexer
func NewRealtime(
	st store.Store,
	cursors store.CursorStore,
	reconciler *Reconciler,
	reader chain.Reader,
	subscriber messaging.Subscriber,
	cfg RealtimeConfig,
) *Realtime {
	if cfg.StartupBackfillBlocks == 0 {
		cfg.StartupBackfillBlocks = domain.StartupBackfillBlocks
	}
	if cfg.WorkerPoolSize == 0 {
		cfg.WorkerPoolSize = defaultBackfillPoolSize
	}
	if cfg.WorkerQueueSize == 0 {
		cfg.WorkerQueueSize = defaultBackfillQueueSize
	}
	return &Realtime{
		store:      st,
		cursors:    cursors,
		reconciler: reconciler,
		reader:     reader,
		subscriber: subscriber,
		config:     cfg,
	}
}

// Run starts the realtime indexer and blocks until the context is cancelled
func (r *Realtime) Run(ctx context.Context) error {
	head, err := r.reader.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest block: %w", err)
	}

	cursor, err := r.cursors.GetBlockCursor(ctx, string(r.config.ChainID))
	if err != nil {
		return fmt.Errorf("failed to get block cursor: %w", err)
	}

	startBlock := cursor + 1
	if cursor == 0 && head > r.config.StartupBackfillBlocks {
		startBlock = head - r.config.StartupBackfillBlocks
		logger.InfoCtx(ctx, "No cursor, starting from recent window",
			zap.Uint64("start_block", startBlock), zap.Uint64("head", head))
	} else {
		logger.InfoCtx(ctx, "Resuming from cursor",
			zap.Uint64("start_block", startBlock), zap.Uint64("head", head))
	}

	if startBlock <= head {
		if err := r.processRange(ctx, startBlock, head); err != nil {
			return err
		}
	}
	lastProcessed := head

	// Token creation announcements bypass the head loop so a fresh token is
	// queryable without waiting for its first traded block.
	if r.subscriber != nil {
		go func() {
			if err := r.subscriber.Run(ctx, func(event *domain.TokenCreated) error {
				return r.handleTokenCreated(ctx, event)
			}); err != nil && ctx.Err() == nil {
				logger.ErrorCtx(ctx, err, zap.String("message", "Token creation subscriber stopped"))
			}
		}()
	}

	return r.followHeads(ctx, lastProcessed)
}

// followHeads consumes new-head notifications, resubscribing with
// exponential backoff when the websocket drops.
func (r *Realtime) followHeads(ctx context.Context, lastProcessed uint64) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // Keep retrying; the indexer has no better option

	for {
		err := r.consumeHeads(ctx, &lastProcessed)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := b.NextBackOff()
		logger.ErrorCtx(ctx, err, zap.String("message", "Head subscription lost, resubscribing"),
			zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (r *Realtime) consumeHeads(ctx context.Context, lastProcessed *uint64) error {
	headers := make(chan *types.Header, 16)
	sub, err := r.reader.SubscribeNewHeads(ctx, headers)
	if err != nil {
		return fmt.Errorf("failed to subscribe to new heads: %w", err)
	}
	defer sub.Unsubscribe()

	logger.InfoCtx(ctx, "Following chain head", zap.Uint64("last_processed", *lastProcessed))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("subscription error: %w", err)
		case header := <-headers:
			head := header.Number.Uint64()
			if head <= *lastProcessed {
				continue
			}

			if err := r.processRange(ctx, *lastProcessed+1, head); err != nil {
				// Leave the cursor behind; the next head retries the range.
				logger.ErrorCtx(ctx, err, zap.String("message", "Block range failed"),
					zap.Uint64("from_block", *lastProcessed+1),
					zap.Uint64("to_block", head))
				continue
			}
			*lastProcessed = head
		}
	}
}

// processRange reconciles every tracked token over [fromBlock, toBlock].
// A failing token is fenced off behind its own watermark instead of holding
// the shared cursor back, so one broken contract cannot starve the rest.
func (r *Realtime) processRange(ctx context.Context, fromBlock, toBlock uint64) error {
	tokens, err := r.store.ListTokens(ctx)
	if err != nil {
		return err
	}

	if len(tokens) > 0 {
		pool := pond.NewPool(
			r.config.WorkerPoolSize,
			pond.WithQueueSize(r.config.WorkerQueueSize),
			pond.WithContext(ctx),
		)

		for _, token := range tokens {
			token := token
			pool.SubmitErr(func() error {
				return r.reconcileToken(ctx, token, fromBlock, toBlock)
			})
		}

		pool.StopAndWait()

		// A failed task here means a token's retry watermark could not be
		// recorded; advancing the shared cursor would lose its range.
		if failed := pool.FailedTasks(); failed > 0 {
			return fmt.Errorf("%d of %d tokens failed in range %d-%d",
				failed, len(tokens), fromBlock, toBlock)
		}
	}

	return r.cursors.SetBlockCursor(ctx, string(r.config.ChainID), toBlock)
}

// tokenCursorKey scopes a repair point to a single token.
func (r *Realtime) tokenCursorKey(address string) string {
	return string(r.config.ChainID) + ":" + address
}

// reconcileToken runs one token over the range. A token with a recorded
// repair point resumes from it, so ranges lost to earlier failures are
// re-fetched before new blocks. On failure the repair point is pinned at
// the start of the failed range; an error is returned only when that
// bookkeeping itself fails.
func (r *Realtime) reconcileToken(ctx context.Context, token *domain.Token, fromBlock, toBlock uint64) error {
	key := r.tokenCursorKey(token.Address)
	mark, err := r.cursors.GetBlockCursor(ctx, key)
	if err != nil {
		return err
	}
	if mark > 0 && mark < fromBlock {
		fromBlock = mark
	}

	if err := r.reconciler.ReconcileRange(ctx, token, fromBlock, toBlock); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Token reconciliation failed, range kept for retry"),
			zap.String("token", token.Address),
			zap.Uint64("from_block", fromBlock),
			zap.Uint64("to_block", toBlock))
		return r.cursors.SetBlockCursor(ctx, key, fromBlock)
	}

	if mark > 0 {
		return r.cursors.SetBlockCursor(ctx, key, toBlock+1)
	}
	return nil
}

// handleTokenCreated registers the token if needed and reconciles its full
// history from the deploy block. The registering process inserts the row
// before publishing, so an announcement for an already-present row still
// triggers the historical scan; every write downstream is idempotent.
func (r *Realtime) handleTokenCreated(ctx context.Context, event *domain.TokenCreated) error {
	token := &domain.Token{
		Address:     domain.NormalizeAddress(event.Address),
		DeployBlock: event.DeployBlock,
	}

	created, err := r.store.CreateToken(ctx, token)
	if err != nil {
		return err
	}
	if created {
		logger.InfoCtx(ctx, "Tracking new token",
			zap.String("token", token.Address),
			zap.Uint64("deploy_block", token.DeployBlock))
	} else {
		existing, err := r.store.GetToken(ctx, token.Address)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.DeployBlock == 0 {
				existing.DeployBlock = event.DeployBlock
			}
			token = existing
		}
		logger.InfoCtx(ctx, "Indexing history of announced token",
			zap.String("token", token.Address),
			zap.Uint64("deploy_block", token.DeployBlock))
	}

	head, err := r.reader.LatestBlock(ctx)
	if err != nil {
		return err
	}

	fromBlock := token.DeployBlock
	if fromBlock == 0 && head > r.config.StartupBackfillBlocks {
		fromBlock = head - r.config.StartupBackfillBlocks
	}

	return r.reconciler.ReconcileRange(ctx, token, fromBlock, head)
}
