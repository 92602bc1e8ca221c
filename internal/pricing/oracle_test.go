package pricing_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"

	"github.com/haven-markets/haven-indexer/internal/chain"
	"github.com/haven-markets/haven-indexer/internal/domain"
	"github.com/haven-markets/haven-indexer/internal/pricing"
)

const (
	wbnbAddr   = "0xbb4cdb9cbd36b01bd1cbaebf2de08d9173bc095c"
	stableAddr = "0xe9e7cea3dedca5984780bafc599bd69add087d56"
	refPair    = "0x58f876857a02d6762e0101bb5c46a8c1ed44dc16"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time                         { return c.now }
func (c *fakeClock) Since(t time.Time) time.Duration        { return c.now.Sub(t) }
func (c *fakeClock) Sleep(d time.Duration)                  { c.now = c.now.Add(d) }
func (c *fakeClock) Unix(sec int64, nsec int64) time.Time   { return time.Unix(sec, nsec) }
func (c *fakeClock) After(d time.Duration) <-chan time.Time { return time.After(0) }

// fakeReader stubs chain.Reader; only the pair accessors matter here.
type fakeReader struct {
	token0, token1     string
	reserve0, reserve1 *big.Int
	pairErr            error
	reserveCalls       int
}

func (r *fakeReader) LatestBlock(ctx context.Context) (uint64, error) { return 0, nil }
func (r *fakeReader) SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, errors.New("not implemented")
}
func (r *fakeReader) FilterTransfers(ctx context.Context, tokenAddress string, fromBlock, toBlock uint64) ([]domain.TransferEvent, error) {
	return nil, nil
}
func (r *fakeReader) FilterCurveTrades(ctx context.Context, curveAddress string, fromBlock, toBlock uint64) ([]domain.RawTradeEvent, error) {
	return nil, nil
}
func (r *fakeReader) FilterPairSwaps(ctx context.Context, pairAddress string, fromBlock, toBlock uint64) ([]domain.RawTradeEvent, error) {
	return nil, nil
}
func (r *fakeReader) FilterFeeCollections(ctx context.Context, curveAddress string, fromBlock, toBlock uint64) ([]domain.CreatorFeeCollection, error) {
	return nil, nil
}
func (r *fakeReader) FindGraduation(ctx context.Context, curveAddress string, fromBlock, toBlock uint64) (*chain.GraduationEvent, error) {
	return nil, nil
}
func (r *fakeReader) TotalSupply(ctx context.Context, tokenAddress string) (*big.Int, error) {
	return nil, nil
}
func (r *fakeReader) Creator(ctx context.Context, curveAddress string) (string, error) {
	return "", domain.ErrMethodNotSupported
}
func (r *fakeReader) PairTokens(ctx context.Context, pairAddress string) (string, string, error) {
	if r.pairErr != nil {
		return "", "", r.pairErr
	}
	return r.token0, r.token1, nil
}
func (r *fakeReader) PairReserves(ctx context.Context, pairAddress string) (*big.Int, *big.Int, error) {
	r.reserveCalls++
	if r.pairErr != nil {
		return nil, nil, r.pairErr
	}
	return r.reserve0, r.reserve1, nil
}
func (r *fakeReader) Close() {}

type fakeHTTP struct {
	body string
	err  error
}

func (h *fakeHTTP) Get(ctx context.Context, url string, result interface{}) error {
	if h.err != nil {
		return h.err
	}
	return json.Unmarshal([]byte(h.body), result)
}

func bnbWei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func oracleConfig() pricing.Config {
	return pricing.Config{
		ReferencePair: refPair,
		WBNBAddress:   wbnbAddr,
		PriceAPIURL:   "https://example.invalid/ticker",
		TTL:           time.Minute,
	}
}

func TestBNBPriceUSD_FromReserves(t *testing.T) {
	// 1,000 WBNB against 650,000 stable: $650 per BNB.
	reader := &fakeReader{
		token0:   wbnbAddr,
		token1:   stableAddr,
		reserve0: bnbWei(1000),
		reserve1: bnbWei(650_000),
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	oracle := pricing.NewOracle(reader, &fakeHTTP{err: errors.New("unused")}, clock, oracleConfig())

	assert.InDelta(t, 650.0, oracle.BNBPriceUSD(context.Background()), 1e-9)
}

func TestBNBPriceUSD_ReservesSlotOrder(t *testing.T) {
	// WBNB in slot 1: the ratio must flip.
	reader := &fakeReader{
		token0:   stableAddr,
		token1:   wbnbAddr,
		reserve0: bnbWei(650_000),
		reserve1: bnbWei(1000),
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	oracle := pricing.NewOracle(reader, &fakeHTTP{err: errors.New("unused")}, clock, oracleConfig())

	assert.InDelta(t, 650.0, oracle.BNBPriceUSD(context.Background()), 1e-9)
}

func TestBNBPriceUSD_FallsBackToAPI(t *testing.T) {
	reader := &fakeReader{pairErr: errors.New("rpc timeout")}
	client := &fakeHTTP{body: `{"symbol":"BNBUSDT","price":"612.40"}`}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	oracle := pricing.NewOracle(reader, client, clock, oracleConfig())

	assert.InDelta(t, 612.40, oracle.BNBPriceUSD(context.Background()), 1e-9)
}

func TestBNBPriceUSD_FallsBackToConstant(t *testing.T) {
	reader := &fakeReader{pairErr: errors.New("rpc timeout")}
	client := &fakeHTTP{err: errors.New("api down")}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	oracle := pricing.NewOracle(reader, client, clock, oracleConfig())

	assert.Equal(t, domain.DefaultBNBPriceUSD, oracle.BNBPriceUSD(context.Background()))
}

func TestBNBPriceUSD_ServesStaleOverConstant(t *testing.T) {
	reader := &fakeReader{
		token0:   wbnbAddr,
		token1:   stableAddr,
		reserve0: bnbWei(1000),
		reserve1: bnbWei(650_000),
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	oracle := pricing.NewOracle(reader, &fakeHTTP{err: errors.New("api down")}, clock, oracleConfig())

	assert.InDelta(t, 650.0, oracle.BNBPriceUSD(context.Background()), 1e-9)

	// Every source fails after the TTL expires: the last known rate is
	// served rather than the constant.
	clock.now = clock.now.Add(5 * time.Minute)
	reader.pairErr = errors.New("rpc timeout")
	assert.InDelta(t, 650.0, oracle.BNBPriceUSD(context.Background()), 1e-9)
}

func TestBNBPriceUSD_CachedWithinTTL(t *testing.T) {
	reader := &fakeReader{
		token0:   wbnbAddr,
		token1:   stableAddr,
		reserve0: bnbWei(1000),
		reserve1: bnbWei(650_000),
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	oracle := pricing.NewOracle(reader, &fakeHTTP{}, clock, oracleConfig())

	oracle.BNBPriceUSD(context.Background())
	oracle.BNBPriceUSD(context.Background())
	assert.Equal(t, 1, reader.reserveCalls)
}

func TestWeiToUSD(t *testing.T) {
	reader := &fakeReader{
		token0:   wbnbAddr,
		token1:   stableAddr,
		reserve0: bnbWei(1000),
		reserve1: bnbWei(650_000),
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	oracle := pricing.NewOracle(reader, &fakeHTTP{}, clock, oracleConfig())

	assert.InDelta(t, 1300.0, oracle.WeiToUSD(context.Background(), bnbWei(2)), 1e-6)
	assert.Zero(t, oracle.WeiToUSD(context.Background(), nil))
	assert.Zero(t, oracle.WeiToUSD(context.Background(), big.NewInt(0)))
}
