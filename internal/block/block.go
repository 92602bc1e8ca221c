package block

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haven-markets/haven-indexer/internal/adapter"
	"github.com/haven-markets/haven-indexer/internal/logger"
)

// headInfo represents the cached chain head
type headInfo struct {
	Number    uint64
	FetchedAt time.Time
}

// BlockProvider provides cached access to the latest block number and to
// block timestamps. It reduces RPC calls by caching the head for a TTL and
// timestamps up to a capacity bound (timestamps of confirmed blocks are
// immutable, so they never expire, only evict).
type BlockProvider interface {
	// GetLatestBlock returns the latest block number, potentially from cache
	GetLatestBlock(ctx context.Context) (uint64, error)

	// GetBlockTimestamp returns the timestamp for a given block number,
	// potentially from cache
	GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// BlockFetcher is the interface for fetching block information from the chain
type BlockFetcher interface {
	// FetchLatestBlock fetches the latest block number from the chain
	FetchLatestBlock(ctx context.Context) (uint64, error)

	// FetchBlockTimestamp fetches the timestamp for a given block number
	FetchBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// Config holds configuration for the BlockProvider
type Config struct {
	// HeadTTL is how long to cache the head block number
	HeadTTL time.Duration

	// StaleWindow is how long stale head data may be served if fetching
	// fails. Beyond this window a fetch failure is returned to the caller.
	StaleWindow time.Duration

	// TimestampCapacity bounds the timestamp cache. Once exceeded, the
	// oldest-inserted entries are evicted. Zero means 1000.
	TimestampCapacity int
}

type blockProvider struct {
	fetcher BlockFetcher
	config  Config
	clock   adapter.Clock

	mu         sync.RWMutex
	head       *headInfo
	timestamps map[uint64]time.Time
	insertions []uint64 // insertion order, oldest first
}

// NewBlockProvider creates a new BlockProvider with caching
func NewBlockProvider(fetcher BlockFetcher, config Config, clock adapter.Clock) BlockProvider {
	if config.TimestampCapacity == 0 {
		config.TimestampCapacity = 1000
	}
	return &blockProvider{
		fetcher:    fetcher,
		config:     config,
		clock:      clock,
		timestamps: make(map[uint64]time.Time),
	}
}

// GetLatestBlock returns the latest block number, using cache if valid
func (p *blockProvider) GetLatestBlock(ctx context.Context) (uint64, error) {
	p.mu.RLock()
	cached := p.head
	p.mu.RUnlock()

	now := p.clock.Now()

	if cached != nil && now.Sub(cached.FetchedAt) < p.config.HeadTTL {
		return cached.Number, nil
	}

	blockNumber, err := p.fetcher.FetchLatestBlock(ctx)
	if err != nil {
		if cached != nil && now.Sub(cached.FetchedAt) < p.config.StaleWindow {
			logger.DebugCtx(ctx, "Using stale head block", zap.Uint64("block_number", cached.Number))
			return cached.Number, nil
		}
		return 0, fmt.Errorf("failed to fetch latest block and no valid cache available: %w", err)
	}

	p.mu.Lock()
	p.head = &headInfo{Number: blockNumber, FetchedAt: now}
	p.mu.Unlock()

	return blockNumber, nil
}

// GetBlockTimestamp returns the timestamp for a given block number, using
// cache if present. Confirmed block timestamps never change, so cache hits
// are always valid.
func (p *blockProvider) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	p.mu.RLock()
	ts, ok := p.timestamps[blockNumber]
	p.mu.RUnlock()

	if ok {
		return ts, nil
	}

	timestamp, err := p.fetcher.FetchBlockTimestamp(ctx, blockNumber)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch block timestamp for block %d: %w", blockNumber, err)
	}

	p.mu.Lock()
	if _, exists := p.timestamps[blockNumber]; !exists {
		p.timestamps[blockNumber] = timestamp
		p.insertions = append(p.insertions, blockNumber)
		for len(p.timestamps) > p.config.TimestampCapacity {
			oldest := p.insertions[0]
			p.insertions = p.insertions[1:]
			delete(p.timestamps, oldest)
		}
	}
	p.mu.Unlock()

	return timestamp, nil
}
