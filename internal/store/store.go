package store

import (
	"context"
	"time"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// Store defines the interface for database operations
type Store interface {
	// CreateToken inserts a token row if it does not exist yet. Returns true
	// when the row was newly created.
	CreateToken(ctx context.Context, token *domain.Token) (bool, error)
	// GetToken retrieves a token by contract address, nil if unknown
	GetToken(ctx context.Context, address string) (*domain.Token, error)
	// ListTokens retrieves all tracked tokens
	ListTokens(ctx context.Context) ([]*domain.Token, error)
	// UpdateToken overwrites a token row
	UpdateToken(ctx context.Context, token *domain.Token) error

	// SaveTransferEvents batch-inserts transfer logs, skipping duplicates
	SaveTransferEvents(ctx context.Context, events []domain.TransferEvent) error
	// GetTransferEvents retrieves all transfer logs for a token in chain order
	GetTransferEvents(ctx context.Context, tokenAddress string) ([]domain.TransferEvent, error)

	// SaveSwapEvents batch-inserts normalized trades, skipping duplicates
	SaveSwapEvents(ctx context.Context, swaps []domain.SwapRecord) error
	// GetSwapEvents retrieves all trades for a token in chain order
	GetSwapEvents(ctx context.Context, tokenAddress string) ([]domain.SwapRecord, error)
	// GetSwapEventsSince retrieves trades for a token at or after the given time
	GetSwapEventsSince(ctx context.Context, tokenAddress string, since time.Time) ([]domain.SwapRecord, error)
	// GetLatestSwap retrieves the most recent trade for a token, nil if none
	GetLatestSwap(ctx context.Context, tokenAddress string) (*domain.SwapRecord, error)

	// ReplaceHolderBalances swaps in a freshly folded balance set for a token
	ReplaceHolderBalances(ctx context.Context, tokenAddress string, balances []domain.HolderBalance) error
	// GetHolderBalances retrieves a token's balances sorted descending
	GetHolderBalances(ctx context.Context, tokenAddress string) ([]domain.HolderBalance, error)
	// GetSiblingHoldings maps each wallet to how many OTHER tokens by the
	// given creator it currently holds, excluding the named token
	GetSiblingHoldings(ctx context.Context, creatorAddress, excludeToken string) (map[string]int, error)

	// SaveFeeCollections batch-inserts fee claims, skipping duplicates
	SaveFeeCollections(ctx context.Context, fees []domain.CreatorFeeCollection) error
	// GetFeeCollections retrieves fee claims for a token in chain order
	GetFeeCollections(ctx context.Context, tokenAddress string) ([]domain.CreatorFeeCollection, error)

	// GetWalletFlags retrieves the current flag rows for the given wallets
	GetWalletFlags(ctx context.Context, wallets []string) (map[string]domain.WalletFlags, error)
	// UpsertWalletFlags merges flag rows into the global register
	UpsertWalletFlags(ctx context.Context, flags []domain.WalletFlags) error

	// SavePriceSnapshot appends one price observation
	SavePriceSnapshot(ctx context.Context, snapshot domain.PriceSnapshot) error
	// GetPriceAt retrieves the latest snapshot at or before the given time;
	// ok is false when no snapshot that old exists
	GetPriceAt(ctx context.Context, tokenAddress string, at time.Time) (price float64, ok bool, err error)

	// UpsertTokenAggregates overwrites a token's metric block wholesale
	UpsertTokenAggregates(ctx context.Context, agg domain.TokenAggregates) error
	// GetTokenAggregates retrieves a token's metric block, nil if never indexed
	GetTokenAggregates(ctx context.Context, tokenAddress string) (*domain.TokenAggregates, error)
	// ListTokenAggregates retrieves every token's metric block
	ListTokenAggregates(ctx context.Context) ([]domain.TokenAggregates, error)
}
