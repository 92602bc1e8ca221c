package executor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haven-markets/haven-indexer/internal/adapter"
	"github.com/haven-markets/haven-indexer/internal/api/rest/dto"
	"github.com/haven-markets/haven-indexer/internal/domain"
	"github.com/haven-markets/haven-indexer/internal/ledger"
	"github.com/haven-markets/haven-indexer/internal/logger"
	"github.com/haven-markets/haven-indexer/internal/store"
)

// staleAfter is how old an aggregate row may be before the read path stops
// trusting it and recomputes from raw ledger rows instead.
const staleAfter = 10 * time.Minute

// Executor holds the read-path business logic shared by the REST handlers
//
//go:generate mockgen -source=executor.go -destination=../../mocks/mock_api_executor.go -package=mocks -mock_names=Executor=MockAPIExecutor
type Executor interface {
	// GetToken retrieves one token with its aggregate metrics. Returns
	// (nil, nil) when the token is not tracked.
	GetToken(ctx context.Context, address string) (*dto.TokenResponse, error)

	// ListTokens retrieves tracked tokens ordered by market cap descending
	ListTokens(ctx context.Context, limit, offset int) (*dto.TokenListResponse, error)

	// GetHolders retrieves a token's holder list with wallet flags attached
	GetHolders(ctx context.Context, address string, limit, offset int) (*dto.HolderListResponse, error)

	// GetSwaps retrieves a token's trades since the given time, newest first
	GetSwaps(ctx context.Context, address string, since time.Time, limit int) (*dto.SwapListResponse, error)

	// GetFeeCollections retrieves a token's creator-fee claims
	GetFeeCollections(ctx context.Context, address string) (*dto.FeeCollectionListResponse, error)

	// GetWalletFlags retrieves the global risk flags for one wallet.
	// Returns (nil, nil) when the wallet has never been flagged.
	GetWalletFlags(ctx context.Context, wallet string) (*dto.WalletFlagsResponse, error)
}

type cacheEntry struct {
	aggregates *domain.TokenAggregates
	cachedAt   time.Time
}

type executor struct {
	store store.Store
	clock adapter.Clock

	cacheTTL time.Duration
	cacheMu  sync.RWMutex
	cache    map[string]cacheEntry
}

// NewExecutor creates the read-path executor. cacheTTL bounds how long a
// token's aggregate block is served from memory before the store is asked
// again; zero selects the default.
func NewExecutor(st store.Store, clock adapter.Clock, cacheTTL time.Duration) Executor {
	if cacheTTL <= 0 {
		cacheTTL = domain.AggregateCacheTTL
	}
	return &executor{
		store:    st,
		clock:    clock,
		cacheTTL: cacheTTL,
		cache:    make(map[string]cacheEntry),
	}
}

func (e *executor) GetToken(ctx context.Context, address string) (*dto.TokenResponse, error) {
	address = domain.NormalizeAddress(address)

	token, err := e.store.GetToken(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	if token == nil {
		return nil, nil
	}

	aggregates, err := e.tokenAggregates(ctx, token)
	if err != nil {
		return nil, err
	}

	return dto.MapTokenToDTO(token, aggregates), nil
}

func (e *executor) ListTokens(ctx context.Context, limit, offset int) (*dto.TokenListResponse, error) {
	all, err := e.store.ListTokenAggregates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list token aggregates: %w", err)
	}

	total := len(all)
	page := paginate(all, limit, offset)

	items := make([]dto.TokenListItem, len(page))
	for i, a := range page {
		a := a
		items[i] = dto.TokenListItem{
			Address:    a.TokenAddress,
			Aggregates: dto.MapAggregatesToDTO(&a),
		}
	}

	resp := &dto.TokenListResponse{Tokens: items, Total: total}
	if next := offset + len(page); next < total {
		resp.NextOffset = &next
	}
	return resp, nil
}

func (e *executor) GetHolders(ctx context.Context, address string, limit, offset int) (*dto.HolderListResponse, error) {
	address = domain.NormalizeAddress(address)

	holders, err := e.store.GetHolderBalances(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get holder balances: %w", err)
	}

	total := len(holders)
	page := paginate(holders, limit, offset)

	wallets := make([]string, len(page))
	for i, h := range page {
		wallets[i] = h.HolderAddress
	}
	flags, err := e.store.GetWalletFlags(ctx, wallets)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet flags: %w", err)
	}

	rows := make([]dto.HolderResponse, len(page))
	for i, h := range page {
		var f *domain.WalletFlags
		if existing, ok := flags[h.HolderAddress]; ok {
			existing := existing
			f = &existing
		}
		rows[i] = dto.MapHolderToDTO(h, f)
	}

	resp := &dto.HolderListResponse{TokenAddress: address, Holders: rows, Total: total}
	if next := offset + len(page); next < total {
		resp.NextOffset = &next
	}
	return resp, nil
}

func (e *executor) GetSwaps(ctx context.Context, address string, since time.Time, limit int) (*dto.SwapListResponse, error) {
	address = domain.NormalizeAddress(address)

	swaps, err := e.store.GetSwapEventsSince(ctx, address, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get swap events: %w", err)
	}

	// Stored order is oldest first; the UI wants the most recent trades.
	rows := make([]dto.SwapResponse, 0, limit)
	for i := len(swaps) - 1; i >= 0 && len(rows) < limit; i-- {
		rows = append(rows, dto.MapSwapToDTO(swaps[i]))
	}

	return &dto.SwapListResponse{TokenAddress: address, Swaps: rows}, nil
}

func (e *executor) GetFeeCollections(ctx context.Context, address string) (*dto.FeeCollectionListResponse, error) {
	address = domain.NormalizeAddress(address)

	collections, err := e.store.GetFeeCollections(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get fee collections: %w", err)
	}

	rows := make([]dto.FeeCollectionResponse, len(collections))
	var totalUSD float64
	for i, f := range collections {
		rows[i] = dto.MapFeeCollectionToDTO(f)
		totalUSD += f.AmountUSD
	}

	return &dto.FeeCollectionListResponse{
		TokenAddress: address,
		Collections:  rows,
		TotalUSD:     totalUSD,
	}, nil
}

func (e *executor) GetWalletFlags(ctx context.Context, wallet string) (*dto.WalletFlagsResponse, error) {
	wallet = domain.NormalizeAddress(wallet)

	flags, err := e.store.GetWalletFlags(ctx, []string{wallet})
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet flags: %w", err)
	}

	f, ok := flags[wallet]
	if !ok {
		return nil, nil
	}
	return dto.MapWalletFlagsToDTO(&f), nil
}

// tokenAggregates returns the aggregate block for one token, serving from
// the in-memory cache while fresh and falling back to an on-the-fly
// recompute from raw ledger rows when the stored row is absent or stale.
func (e *executor) tokenAggregates(ctx context.Context, token *domain.Token) (*domain.TokenAggregates, error) {
	now := e.clock.Now()

	e.cacheMu.RLock()
	entry, ok := e.cache[token.Address]
	e.cacheMu.RUnlock()
	if ok && now.Sub(entry.cachedAt) < e.cacheTTL {
		return entry.aggregates, nil
	}

	aggregates, err := e.store.GetTokenAggregates(ctx, token.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to get token aggregates: %w", err)
	}

	if aggregates == nil || now.Sub(aggregates.LastIndexedAt) > staleAfter {
		recomputed, err := e.recomputeAggregates(ctx, token, aggregates, now)
		if err != nil {
			// Serve the stale row rather than surfacing an error; staleness
			// shows up as slightly outdated percentages, not as a failure.
			logger.WarnCtx(ctx, "Aggregate recompute failed, serving stored row",
				zap.String("token", token.Address), zap.Error(err))
		} else {
			aggregates = recomputed
		}
	}

	e.cacheMu.Lock()
	e.cache[token.Address] = cacheEntry{aggregates: aggregates, cachedAt: now}
	e.cacheMu.Unlock()

	return aggregates, nil
}

// recomputeAggregates rebuilds the holder-derived metrics from raw transfer
// rows. Classification percentages reuse the stored global wallet flags
// instead of re-running the classifier; trade metrics come from the stored
// swap rows. The result is served, not written back; the indexer remains
// the sole writer of aggregate rows.
func (e *executor) recomputeAggregates(ctx context.Context, token *domain.Token, stored *domain.TokenAggregates, now time.Time) (*domain.TokenAggregates, error) {
	transfers, err := e.store.GetTransferEvents(ctx, token.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer events: %w", err)
	}
	if len(transfers) == 0 {
		return stored, nil
	}

	fold := ledger.Replay(transfers)
	stats := ledger.BuildStats(fold, token, now)

	out := domain.TokenAggregates{TokenAddress: token.Address}
	if stored != nil {
		// Keep the metrics this path cannot rebuild from ledger rows.
		out.LiquidityUSD = stored.LiquidityUSD
		out.PriceChange5m = stored.PriceChange5m
		out.PriceChange1h = stored.PriceChange1h
		out.PriceChange6h = stored.PriceChange6h
		out.PriceChange24h = stored.PriceChange24h
		out.SniperPercent = stored.SniperPercent
		out.InsiderPercent = stored.InsiderPercent
		out.PhishingPercent = stored.PhishingPercent
		out.LastIndexedAt = stored.LastIndexedAt
	}

	out.HoldersCount = len(stats.Holders)
	out.DevPercent = stats.DevPercent
	out.Top10Percent = stats.Top10Percent

	if err := e.recomputeFlagPercents(ctx, token, stats.Holders, &out); err != nil {
		// Flag percentages degrade to the stored values on failure.
		logger.WarnCtx(ctx, "Flag percentage recompute failed",
			zap.String("token", token.Address), zap.Error(err))
	}

	latest, err := e.store.GetLatestSwap(ctx, token.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest swap: %w", err)
	}
	if latest != nil {
		out.PriceUSD = latest.PriceUSD
		out.MarketCapUSD = latest.PriceUSD * wholeTokens(token.TotalSupply)
	}

	swaps, err := e.store.GetSwapEventsSince(ctx, token.Address, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to get swap events: %w", err)
	}
	for _, s := range swaps {
		volume := s.PriceUSD * wholeTokens(s.TokenAmount)
		out.Txns24h++
		out.Volume24hUSD += volume
		if s.IsBuy {
			out.Buys24h++
			out.BuyVolume24h += volume
		} else {
			out.Sells24h++
			out.SellVolume24h += volume
		}
	}
	out.NetBuy24h = out.BuyVolume24h - out.SellVolume24h

	return &out, nil
}

// recomputeFlagPercents rebuilds the sniper/insider/phishing supply shares
// from the replayed holder list and the stored global wallet flags.
func (e *executor) recomputeFlagPercents(ctx context.Context, token *domain.Token, holders []domain.HolderBalance, out *domain.TokenAggregates) error {
	if len(holders) == 0 {
		out.SniperPercent = 0
		out.InsiderPercent = 0
		out.PhishingPercent = 0
		return nil
	}

	wallets := make([]string, len(holders))
	for i, h := range holders {
		wallets[i] = h.HolderAddress
	}
	flags, err := e.store.GetWalletFlags(ctx, wallets)
	if err != nil {
		return err
	}

	sniperHeld := new(big.Int)
	insiderHeld := new(big.Int)
	phishingHeld := new(big.Int)
	for _, h := range holders {
		f, ok := flags[h.HolderAddress]
		if !ok {
			continue
		}
		if f.IsSniper {
			sniperHeld.Add(sniperHeld, h.Balance)
		}
		if f.IsInsider {
			insiderHeld.Add(insiderHeld, h.Balance)
		}
		if f.IsPhishing {
			phishingHeld.Add(phishingHeld, h.Balance)
		}
	}

	out.SniperPercent = ledger.PercentOfSupply(sniperHeld, token.TotalSupply)
	out.InsiderPercent = ledger.PercentOfSupply(insiderHeld, token.TotalSupply)
	out.PhishingPercent = ledger.PercentOfSupply(phishingHeld, token.TotalSupply)
	return nil
}

var weiPerWholeToken = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func wholeTokens(raw *big.Int) float64 {
	if raw == nil {
		return 0
	}
	whole, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), weiPerWholeToken).Float64()
	return whole
}

func paginate[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}
