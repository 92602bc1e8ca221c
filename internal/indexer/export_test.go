package indexer

import (
	"context"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

func (r *Realtime) HandleTokenCreated(ctx context.Context, event *domain.TokenCreated) error {
	return r.handleTokenCreated(ctx, event)
}

func (r *Realtime) ProcessRange(ctx context.Context, fromBlock, toBlock uint64) error {
	return r.processRange(ctx, fromBlock, toBlock)
}
