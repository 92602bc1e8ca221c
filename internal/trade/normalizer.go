package trade

import (
	"math/big"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// Normalizer maps the three raw trade event shapes into canonical swap
// records. One mapping function per union variant; events that resolve to
// no valid direction are discarded by returning domain.ErrNoTradeDirection,
// never recorded as zero-value trades.
type Normalizer struct{}

// NewNormalizer creates a trade normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize converts a raw trade event for the given token. tokenIsToken0
// reports which pair slot the tracked token occupies (pair swaps only;
// read once via the pair's token-order accessors and cached upstream).
// bnbPriceUSD is the oracle rate at ingestion time: the USD price is
// always computed from the event's actual amounts, never from reserves.
func (n *Normalizer) Normalize(token *domain.Token, tokenIsToken0 bool, bnbPriceUSD float64, event domain.RawTradeEvent) (*domain.SwapRecord, error) {
	switch e := event.(type) {
	case domain.CurveBuyEvent:
		return n.normalizeCurveBuy(token, bnbPriceUSD, e), nil
	case domain.CurveSellEvent:
		return n.normalizeCurveSell(token, bnbPriceUSD, e), nil
	case domain.PairSwapEvent:
		return n.normalizePairSwap(token, tokenIsToken0, bnbPriceUSD, e)
	default:
		return nil, domain.ErrNoTradeDirection
	}
}

func (n *Normalizer) normalizeCurveBuy(token *domain.Token, bnbPriceUSD float64, e domain.CurveBuyEvent) *domain.SwapRecord {
	return &domain.SwapRecord{
		TokenAddress:  domain.NormalizeAddress(token.Address),
		PairAddress:   domain.NormalizeAddress(token.CurveAddress()),
		Trader:        e.Buyer,
		IsBuy:         true,
		TokenAmount:   e.TokensOut,
		CounterAmount: e.AssetIn,
		PriceUSD:      perTokenUSD(e.AssetIn, e.TokensOut, bnbPriceUSD),
		TxHash:        e.TxHash,
		BlockNumber:   e.BlockNumber,
		LogIndex:      e.LogIndex,
		Timestamp:     e.Timestamp,
	}
}

func (n *Normalizer) normalizeCurveSell(token *domain.Token, bnbPriceUSD float64, e domain.CurveSellEvent) *domain.SwapRecord {
	return &domain.SwapRecord{
		TokenAddress:  domain.NormalizeAddress(token.Address),
		PairAddress:   domain.NormalizeAddress(token.CurveAddress()),
		Trader:        e.Seller,
		IsBuy:         false,
		TokenAmount:   e.TokensIn,
		CounterAmount: e.AssetOut,
		PriceUSD:      perTokenUSD(e.AssetOut, e.TokensIn, bnbPriceUSD),
		TxHash:        e.TxHash,
		BlockNumber:   e.BlockNumber,
		LogIndex:      e.LogIndex,
		Timestamp:     e.Timestamp,
	}
}

// normalizePairSwap resolves a V2-style Swap against the tracked token's
// pair slot. A buy means the counter asset flowed in and the tracked token
// flowed out in the same event; the mirror is a sell. Anything else
// (both sides zero, same-direction anomalies) is discarded.
func (n *Normalizer) normalizePairSwap(token *domain.Token, tokenIsToken0 bool, bnbPriceUSD float64, e domain.PairSwapEvent) (*domain.SwapRecord, error) {
	tokenIn, tokenOut := e.Amount0In, e.Amount0Out
	counterIn, counterOut := e.Amount1In, e.Amount1Out
	if !tokenIsToken0 {
		tokenIn, tokenOut = e.Amount1In, e.Amount1Out
		counterIn, counterOut = e.Amount0In, e.Amount0Out
	}

	var (
		isBuy         bool
		trader        string
		tokenAmount   *big.Int
		counterAmount *big.Int
	)

	switch {
	case counterIn.Sign() > 0 && tokenOut.Sign() > 0:
		isBuy = true
		trader = e.To
		tokenAmount = tokenOut
		counterAmount = counterIn
	case tokenIn.Sign() > 0 && counterOut.Sign() > 0:
		isBuy = false
		trader = e.Sender
		tokenAmount = tokenIn
		counterAmount = counterOut
	default:
		return nil, domain.ErrNoTradeDirection
	}

	return &domain.SwapRecord{
		TokenAddress:  domain.NormalizeAddress(token.Address),
		PairAddress:   e.PairAddress,
		Trader:        trader,
		IsBuy:         isBuy,
		TokenAmount:   tokenAmount,
		CounterAmount: counterAmount,
		PriceUSD:      perTokenUSD(counterAmount, tokenAmount, bnbPriceUSD),
		TxHash:        e.TxHash,
		BlockNumber:   e.BlockNumber,
		LogIndex:      e.LogIndex,
		Timestamp:     e.Timestamp,
	}, nil
}

var weiPerUnit = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// perTokenUSD prices one trade from its actual amounts: the counter-asset
// leg converted to USD, divided by the token leg. Both legs carry 18
// decimals on chain.
func perTokenUSD(counterWei, tokenWei *big.Int, bnbPriceUSD float64) float64 {
	if counterWei == nil || tokenWei == nil || tokenWei.Sign() == 0 {
		return 0
	}

	counterBNB, _ := new(big.Float).Quo(new(big.Float).SetInt(counterWei), weiPerUnit).Float64()
	tokens, _ := new(big.Float).Quo(new(big.Float).SetInt(tokenWei), weiPerUnit).Float64()
	if tokens == 0 {
		return 0
	}
	return counterBNB * bnbPriceUSD / tokens
}
