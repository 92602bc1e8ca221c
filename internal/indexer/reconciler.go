package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/haven-markets/haven-indexer/internal/adapter"
	"github.com/haven-markets/haven-indexer/internal/chain"
	"github.com/haven-markets/haven-indexer/internal/classify"
	"github.com/haven-markets/haven-indexer/internal/domain"
	"github.com/haven-markets/haven-indexer/internal/ledger"
	"github.com/haven-markets/haven-indexer/internal/logger"
	"github.com/haven-markets/haven-indexer/internal/pricing"
	"github.com/haven-markets/haven-indexer/internal/store"
	"github.com/haven-markets/haven-indexer/internal/trade"
)

// Reconciler drives one token through a full reconciliation pass: fetch the
// block range, persist raw events, refold balances from the complete transfer
// log, classify holders and overwrite the aggregate block. Every write is an
// idempotent upsert on a natural key, so replaying any range converges on the
// same state.
type Reconciler struct {
	store      store.Store
	reader     chain.Reader
	oracle     pricing.Oracle
	normalizer *trade.Normalizer
	clock      adapter.Clock
}

// NewReconciler creates a reconciler over the given store and chain reader
func NewReconciler(st store.Store, reader chain.Reader, oracle pricing.Oracle, clock adapter.Clock) *Reconciler {
	return &Reconciler{
		store:      st,
		reader:     reader,
		oracle:     oracle,
		normalizer: trade.NewNormalizer(),
		clock:      clock,
	}
}

// ReconcileRange fetches and persists a token's events in [fromBlock,
// toBlock], then recomputes everything derived from them. A failure leaves
// the token behind but never inconsistent; the next pass repairs it.
func (r *Reconciler) ReconcileRange(ctx context.Context, token *domain.Token, fromBlock, toBlock uint64) error {
	token, err := r.refreshTokenFacts(ctx, token)
	if err != nil {
		return err
	}

	if err := r.ingestTransfers(ctx, token, fromBlock, toBlock); err != nil {
		return err
	}

	if err := r.detectGraduation(ctx, token, fromBlock, toBlock); err != nil {
		return err
	}

	if err := r.ingestTrades(ctx, token, fromBlock, toBlock); err != nil {
		return err
	}

	return r.Recompute(ctx, token)
}

// refreshTokenFacts re-reads slow-moving contract state: total supply, and
// the creator when it is not known yet.
func (r *Reconciler) refreshTokenFacts(ctx context.Context, token *domain.Token) (*domain.Token, error) {
	changed := false

	supply, err := r.reader.TotalSupply(ctx, token.Address)
	if err != nil {
		if !errors.Is(err, domain.ErrMethodNotSupported) {
			return nil, fmt.Errorf("failed to read total supply for %s: %w", token.Address, err)
		}
		// Supply-derived percentages stay at their last stored values.
	} else if token.TotalSupply == nil || token.TotalSupply.Cmp(supply) != 0 {
		token.TotalSupply = supply
		changed = true
	}

	if token.CreatorAddress == "" {
		creator, err := r.reader.Creator(ctx, token.CurveAddress())
		if err != nil {
			if !errors.Is(err, domain.ErrMethodNotSupported) {
				return nil, fmt.Errorf("failed to read creator for %s: %w", token.Address, err)
			}
			// No accessor on this deployment; insider detection degrades
			// to a no-op for this token.
		} else {
			token.CreatorAddress = creator
			changed = true
		}
	}

	if changed {
		if err := r.store.UpdateToken(ctx, token); err != nil {
			return nil, err
		}
	}

	return token, nil
}

func (r *Reconciler) ingestTransfers(ctx context.Context, token *domain.Token, fromBlock, toBlock uint64) error {
	transfers, err := r.reader.FilterTransfers(ctx, token.Address, fromBlock, toBlock)
	if err != nil {
		return err
	}

	logger.DebugCtx(ctx, "Fetched transfers",
		zap.String("token", token.Address),
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", toBlock),
		zap.Int("count", len(transfers)))

	return r.store.SaveTransferEvents(ctx, transfers)
}

// detectGraduation looks for the curve's graduation event in the range and
// records the pair address. Graduation happens at most once.
func (r *Reconciler) detectGraduation(ctx context.Context, token *domain.Token, fromBlock, toBlock uint64) error {
	if token.Graduated {
		return nil
	}

	grad, err := r.reader.FindGraduation(ctx, token.CurveAddress(), fromBlock, toBlock)
	if err != nil {
		return err
	}
	if grad == nil {
		return nil
	}

	token.Graduated = true
	token.PairAddress = grad.PairAddress
	token.GraduatedAt = &grad.Timestamp

	logger.InfoCtx(ctx, "Token graduated",
		zap.String("token", token.Address),
		zap.String("pair", grad.PairAddress),
		zap.Uint64("block", grad.BlockNumber))

	return r.store.UpdateToken(ctx, token)
}

// ingestTrades normalizes curve trades and, after graduation, pair swaps into
// swap rows. Directionless pair swaps (liquidity adds, arbitrage legs that
// net to zero on the tracked token) are skipped.
func (r *Reconciler) ingestTrades(ctx context.Context, token *domain.Token, fromBlock, toBlock uint64) error {
	raw, err := r.reader.FilterCurveTrades(ctx, token.CurveAddress(), fromBlock, toBlock)
	if err != nil {
		return err
	}

	tokenIsToken0 := false
	if token.Graduated && token.PairAddress != "" {
		pairSwaps, err := r.reader.FilterPairSwaps(ctx, token.PairAddress, fromBlock, toBlock)
		if err != nil {
			return err
		}
		raw = append(raw, pairSwaps...)

		token0, _, err := r.reader.PairTokens(ctx, token.PairAddress)
		if err != nil {
			return err
		}
		tokenIsToken0 = domain.NormalizeAddress(token0) == domain.NormalizeAddress(token.Address)
	}

	if len(raw) == 0 {
		return nil
	}

	bnbPrice := r.oracle.BNBPriceUSD(ctx)

	swaps := make([]domain.SwapRecord, 0, len(raw))
	for _, event := range raw {
		swap, err := r.normalizer.Normalize(token, tokenIsToken0, bnbPrice, event)
		if err != nil {
			if errors.Is(err, domain.ErrNoTradeDirection) {
				logger.DebugCtx(ctx, "Skipping directionless swap",
					zap.String("token", token.Address),
					zap.String("tx_hash", event.Meta().TxHash))
				continue
			}
			return err
		}
		swaps = append(swaps, *swap)
	}

	return r.store.SaveSwapEvents(ctx, swaps)
}

// CollectFees fetches creator-fee claims in the range and persists them with
// a USD valuation at the current BNB price.
func (r *Reconciler) CollectFees(ctx context.Context, token *domain.Token, fromBlock, toBlock uint64) error {
	fees, err := r.reader.FilterFeeCollections(ctx, token.CurveAddress(), fromBlock, toBlock)
	if err != nil {
		return err
	}

	for i := range fees {
		fees[i].TokenAddress = token.Address
		fees[i].AmountUSD = r.oracle.WeiToUSD(ctx, fees[i].AmountWei)
	}

	return r.store.SaveFeeCollections(ctx, fees)
}

// Recompute refolds balances from the full transfer log, reclassifies
// holders and overwrites the aggregate block. It reads only the store and
// slow-moving contract views, so it can run without fetching new events.
func (r *Reconciler) Recompute(ctx context.Context, token *domain.Token) error {
	now := r.clock.Now()

	transfers, err := r.store.GetTransferEvents(ctx, token.Address)
	if err != nil {
		return err
	}

	fold := ledger.Replay(transfers)
	if len(fold.NegativeHolders) > 0 {
		// A negative fold means the transfer log has a gap; publishing
		// balances derived from it would be wrong.
		return fmt.Errorf("balance fold went negative for %s (holders: %v): ingestion gap",
			token.Address, fold.NegativeHolders)
	}

	stats := ledger.BuildStats(fold, token, now)
	if err := r.store.ReplaceHolderBalances(ctx, token.Address, stats.Holders); err != nil {
		return err
	}

	cls, err := r.classifyHolders(ctx, token, transfers, stats.Holders, fold.FirstBlock, now)
	if err != nil {
		return err
	}

	agg, err := r.computeAggregates(ctx, token, stats, cls, now)
	if err != nil {
		return err
	}

	if agg.PriceUSD > 0 {
		err = r.store.SavePriceSnapshot(ctx, domain.PriceSnapshot{
			TokenAddress: token.Address,
			PriceUSD:     agg.PriceUSD,
			Timestamp:    now,
		})
		if err != nil {
			return err
		}
	}

	return r.store.UpsertTokenAggregates(ctx, agg)
}

func (r *Reconciler) classifyHolders(
	ctx context.Context,
	token *domain.Token,
	transfers []domain.TransferEvent,
	holders []domain.HolderBalance,
	firstBlock uint64,
	now time.Time,
) (domain.ClassificationStats, error) {
	swaps, err := r.store.GetSwapEvents(ctx, token.Address)
	if err != nil {
		return domain.ClassificationStats{}, err
	}

	var siblings map[string]int
	if token.CreatorAddress != "" {
		siblings, err = r.store.GetSiblingHoldings(ctx, token.CreatorAddress, token.Address)
		if err != nil {
			return domain.ClassificationStats{}, err
		}
	}

	wallets := make([]string, len(holders))
	for i, h := range holders {
		wallets[i] = h.HolderAddress
	}
	existing, err := r.store.GetWalletFlags(ctx, wallets)
	if err != nil {
		return domain.ClassificationStats{}, err
	}

	cls := classify.Classify(classify.Input{
		Token:           token,
		Transfers:       transfers,
		Swaps:           swaps,
		Holders:         holders,
		FirstBlock:      firstBlock,
		SiblingHoldings: siblings,
		ExistingFlags:   existing,
		Now:             now,
	})

	if err := r.store.UpsertWalletFlags(ctx, cls.Flags); err != nil {
		return domain.ClassificationStats{}, err
	}

	return cls, nil
}

// computeAggregates assembles the wholesale-overwritten metric block from
// the store and current pair reserves.
func (r *Reconciler) computeAggregates(
	ctx context.Context,
	token *domain.Token,
	stats domain.HolderStats,
	cls domain.ClassificationStats,
	now time.Time,
) (domain.TokenAggregates, error) {
	agg := domain.TokenAggregates{
		TokenAddress:    domain.NormalizeAddress(token.Address),
		HoldersCount:    len(stats.Holders),
		DevPercent:      stats.DevPercent,
		Top10Percent:    stats.Top10Percent,
		SniperPercent:   cls.SniperPercent,
		InsiderPercent:  cls.InsiderPercent,
		PhishingPercent: cls.PhishingPercent,
		LastIndexedAt:   now,
	}

	latest, err := r.store.GetLatestSwap(ctx, token.Address)
	if err != nil {
		return agg, err
	}
	if latest != nil {
		agg.PriceUSD = latest.PriceUSD
	}

	agg.MarketCapUSD = agg.PriceUSD * wholeTokens(token.TotalSupply)

	recent, err := r.store.GetSwapEventsSince(ctx, token.Address, now.Add(-24*time.Hour))
	if err != nil {
		return agg, err
	}
	for _, s := range recent {
		// Volume is valued at the price each trade executed at.
		volume := s.PriceUSD * wholeTokens(s.TokenAmount)
		agg.Volume24hUSD += volume
		if s.IsBuy {
			agg.Buys24h++
			agg.BuyVolume24h += volume
		} else {
			agg.Sells24h++
			agg.SellVolume24h += volume
		}
	}
	agg.Txns24h = agg.Buys24h + agg.Sells24h
	agg.NetBuy24h = agg.BuyVolume24h - agg.SellVolume24h

	if agg.PriceUSD > 0 {
		agg.PriceChange5m = r.priceChange(ctx, token.Address, agg.PriceUSD, now, 5*time.Minute)
		agg.PriceChange1h = r.priceChange(ctx, token.Address, agg.PriceUSD, now, time.Hour)
		agg.PriceChange6h = r.priceChange(ctx, token.Address, agg.PriceUSD, now, 6*time.Hour)
		agg.PriceChange24h = r.priceChange(ctx, token.Address, agg.PriceUSD, now, 24*time.Hour)
	}

	if token.Graduated && token.PairAddress != "" {
		liquidity, err := r.pairLiquidityUSD(ctx, token)
		if err != nil {
			// Reserves are cosmetic relative to the ledger; log and move on.
			logger.WarnCtx(ctx, "Failed to read pair reserves",
				zap.String("token", token.Address),
				zap.Error(err))
		} else {
			agg.LiquidityUSD = liquidity
		}
	}

	return agg, nil
}

// priceChange returns the percentage move from the snapshot taken `horizon`
// ago, 0 when no snapshot that old exists.
func (r *Reconciler) priceChange(ctx context.Context, tokenAddress string, current float64, now time.Time, horizon time.Duration) float64 {
	base, ok, err := r.store.GetPriceAt(ctx, tokenAddress, now.Add(-horizon))
	if err != nil {
		logger.WarnCtx(ctx, "Failed to read price snapshot",
			zap.String("token", tokenAddress),
			zap.Duration("horizon", horizon),
			zap.Error(err))
		return 0
	}
	if !ok || base <= 0 {
		return 0
	}
	return (current - base) / base * 100
}

// pairLiquidityUSD values both sides of the pair as twice the BNB reserve.
func (r *Reconciler) pairLiquidityUSD(ctx context.Context, token *domain.Token) (float64, error) {
	reserve0, reserve1, err := r.reader.PairReserves(ctx, token.PairAddress)
	if err != nil {
		return 0, err
	}

	token0, _, err := r.reader.PairTokens(ctx, token.PairAddress)
	if err != nil {
		return 0, err
	}

	counterReserve := reserve0
	if domain.NormalizeAddress(token0) == domain.NormalizeAddress(token.Address) {
		counterReserve = reserve1
	}

	return 2 * r.oracle.WeiToUSD(ctx, counterReserve), nil
}

var weiPerWholeToken = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// wholeTokens converts a raw 18-decimal amount to a float token count.
func wholeTokens(raw *big.Int) float64 {
	if raw == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), weiPerWholeToken).Float64()
	return f
}
