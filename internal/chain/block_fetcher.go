package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/haven-markets/haven-indexer/internal/adapter"
	"github.com/haven-markets/haven-indexer/internal/block"
)

// blockFetcher implements block.BlockFetcher on a raw eth client
type blockFetcher struct {
	client adapter.EthClient
}

// NewBlockFetcher creates a block fetcher for the block provider cache
func NewBlockFetcher(client adapter.EthClient) block.BlockFetcher {
	return &blockFetcher{client: client}
}

// FetchLatestBlock fetches the latest block number from the chain
func (f *blockFetcher) FetchLatestBlock(ctx context.Context) (uint64, error) {
	header, err := f.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

// FetchBlockTimestamp fetches the timestamp for a given block number
func (f *blockFetcher) FetchBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	header, err := f.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get block %d: %w", blockNumber, err)
	}
	return time.Unix(int64(header.Time), 0), nil //nolint:gosec,G115 // header.Time is a uint64 from geth which is safe to cast
}
