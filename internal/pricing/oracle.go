package pricing

import (
	"context"
	"errors"
	"math/big"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haven-markets/haven-indexer/internal/adapter"
	"github.com/haven-markets/haven-indexer/internal/chain"
	"github.com/haven-markets/haven-indexer/internal/domain"
	"github.com/haven-markets/haven-indexer/internal/logger"
)

// Oracle serves the BNB/USD rate used to price trades. Values derive from
// reserve reads of a known WBNB/stable liquidity pair and are cached for a
// TTL; a reference price API is the first fallback and a constant the last.
type Oracle interface {
	// BNBPriceUSD returns the current BNB/USD rate, potentially cached
	BNBPriceUSD(ctx context.Context) float64

	// WeiToUSD converts a wei-denominated BNB amount to USD
	WeiToUSD(ctx context.Context, wei *big.Int) float64
}

// Config holds the oracle configuration
type Config struct {
	// ReferencePair is a WBNB/stablecoin pair used for reserve-based pricing
	ReferencePair string
	// WBNBAddress identifies which pair slot holds WBNB
	WBNBAddress string
	// PriceAPIURL is the reference price endpoint used when reserve reads fail
	PriceAPIURL string
	// TTL is how long a fetched rate is served from cache
	TTL time.Duration
}

type oracle struct {
	reader chain.Reader
	http   adapter.HTTPClient
	clock  adapter.Clock
	config Config

	mu        sync.Mutex
	price     float64
	fetchedAt time.Time
}

// NewOracle creates a price oracle with a TTL cache
func NewOracle(reader chain.Reader, httpClient adapter.HTTPClient, clock adapter.Clock, cfg Config) Oracle {
	if cfg.TTL == 0 {
		cfg.TTL = time.Minute
	}
	return &oracle{
		reader: reader,
		http:   httpClient,
		clock:  clock,
		config: cfg,
	}
}

// BNBPriceUSD returns the BNB/USD rate. Failures degrade through the
// reference API to the documented fallback constant; this method never
// fails, because pricing staleness is preferable to halting ingestion.
func (o *oracle) BNBPriceUSD(ctx context.Context) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now()
	if o.price > 0 && now.Sub(o.fetchedAt) < o.config.TTL {
		return o.price
	}

	price, err := o.fetchFromReserves(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "Reserve-based BNB price failed, trying reference API", zap.Error(err))
		price, err = o.fetchFromAPI(ctx)
	}
	if err != nil {
		logger.WarnCtx(ctx, "Reference API BNB price failed", zap.Error(err))
		if o.price > 0 {
			// Serve the stale rate rather than the constant
			return o.price
		}
		return domain.DefaultBNBPriceUSD
	}

	o.price = price
	o.fetchedAt = now
	return price
}

// fetchFromReserves derives BNB/USD from the reference pair's reserves.
// Both WBNB and BSC stablecoins carry 18 decimals, so the rate is the
// plain reserve ratio.
func (o *oracle) fetchFromReserves(ctx context.Context) (float64, error) {
	token0, _, err := o.reader.PairTokens(ctx, o.config.ReferencePair)
	if err != nil {
		return 0, err
	}

	reserve0, reserve1, err := o.reader.PairReserves(ctx, o.config.ReferencePair)
	if err != nil {
		return 0, err
	}

	wbnbReserve, stableReserve := reserve0, reserve1
	if token0 != domain.NormalizeAddress(o.config.WBNBAddress) {
		wbnbReserve, stableReserve = reserve1, reserve0
	}
	if wbnbReserve.Sign() == 0 {
		return 0, errEmptyReserves
	}

	stable, _ := new(big.Float).SetInt(stableReserve).Float64()
	wbnb, _ := new(big.Float).SetInt(wbnbReserve).Float64()
	return stable / wbnb, nil
}

// tickerResponse matches the reference price API's shape
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (o *oracle) fetchFromAPI(ctx context.Context) (float64, error) {
	var resp tickerResponse
	if err := o.http.Get(ctx, o.config.PriceAPIURL, &resp); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp.Price, 64)
}

// WeiToUSD converts a wei amount of BNB to USD at the current rate.
func (o *oracle) WeiToUSD(ctx context.Context, wei *big.Int) float64 {
	if wei == nil || wei.Sign() == 0 {
		return 0
	}
	bnb, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetInt(weiPerBNB),
	).Float64()
	return bnb * o.BNBPriceUSD(ctx)
}

var weiPerBNB = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// errEmptyReserves means the reference pair holds no WBNB, so no rate can
// be derived from it.
var errEmptyReserves = errors.New("reference pair has empty wbnb reserve")
