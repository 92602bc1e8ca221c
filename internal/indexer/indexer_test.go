package indexer_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-markets/haven-indexer/internal/chain"
	"github.com/haven-markets/haven-indexer/internal/domain"
	"github.com/haven-markets/haven-indexer/internal/indexer"
)

const (
	tokenAddr   = "0xc0ffee0000000000000000000000000000000001"
	creatorAddr = "0xdeaf000000000000000000000000000000000002"
	alice       = "0xa11ce00000000000000000000000000000000003"
	bob         = "0xb0b0000000000000000000000000000000000004"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time                         { return c.now }
func (c *fakeClock) Since(t time.Time) time.Duration        { return c.now.Sub(t) }
func (c *fakeClock) Sleep(d time.Duration)                  { c.now = c.now.Add(d) }
func (c *fakeClock) Unix(sec int64, nsec int64) time.Time   { return time.Unix(sec, nsec) }
func (c *fakeClock) After(d time.Duration) <-chan time.Time { return time.After(0) }

// memStore is an in-memory store with the same natural-key dedup semantics
// as the postgres implementation. The mutex matters: backfill runs tokens on
// a worker pool.
type memStore struct {
	mu        sync.Mutex
	tokens    map[string]*domain.Token
	transfers map[string]domain.TransferEvent
	swaps     map[string]domain.SwapRecord
	holders   map[string][]domain.HolderBalance
	fees      map[string]domain.CreatorFeeCollection
	flags     map[string]domain.WalletFlags
	snapshots []domain.PriceSnapshot
	aggs      map[string]domain.TokenAggregates
	siblings  map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		tokens:    make(map[string]*domain.Token),
		transfers: make(map[string]domain.TransferEvent),
		swaps:     make(map[string]domain.SwapRecord),
		holders:   make(map[string][]domain.HolderBalance),
		fees:      make(map[string]domain.CreatorFeeCollection),
		flags:     make(map[string]domain.WalletFlags),
		aggs:      make(map[string]domain.TokenAggregates),
	}
}

func (s *memStore) CreateToken(ctx context.Context, token *domain.Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token.Address]; ok {
		return false, nil
	}
	copied := *token
	s.tokens[token.Address] = &copied
	return true, nil
}

func (s *memStore) GetToken(ctx context.Context, address string) (*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[address]
	if !ok {
		return nil, nil
	}
	copied := *token
	return &copied, nil
}

func (s *memStore) ListTokens(ctx context.Context) ([]*domain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]string, 0, len(s.tokens))
	for addr := range s.tokens {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	out := make([]*domain.Token, 0, len(addrs))
	for _, addr := range addrs {
		copied := *s.tokens[addr]
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memStore) UpdateToken(ctx context.Context, token *domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *token
	s.tokens[token.Address] = &copied
	return nil
}

func (s *memStore) SaveTransferEvents(ctx context.Context, events []domain.TransferEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		key := fmt.Sprintf("%s|%s|%d", e.TxHash, e.TokenAddress, e.LogIndex)
		if _, ok := s.transfers[key]; !ok {
			s.transfers[key] = e
		}
	}
	return nil
}

func (s *memStore) GetTransferEvents(ctx context.Context, tokenAddress string) ([]domain.TransferEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.TransferEvent
	for _, e := range s.transfers {
		if e.TokenAddress == tokenAddress {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out, nil
}

func (s *memStore) SaveSwapEvents(ctx context.Context, swaps []domain.SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sw := range swaps {
		key := fmt.Sprintf("%s|%d", sw.TxHash, sw.LogIndex)
		if _, ok := s.swaps[key]; !ok {
			s.swaps[key] = sw
		}
	}
	return nil
}

func (s *memStore) GetSwapEvents(ctx context.Context, tokenAddress string) ([]domain.SwapRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SwapRecord
	for _, sw := range s.swaps {
		if sw.TokenAddress == tokenAddress {
			out = append(out, sw)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out, nil
}

func (s *memStore) GetSwapEventsSince(ctx context.Context, tokenAddress string, since time.Time) ([]domain.SwapRecord, error) {
	all, _ := s.GetSwapEvents(ctx, tokenAddress)
	var out []domain.SwapRecord
	for _, sw := range all {
		if !sw.Timestamp.Before(since) {
			out = append(out, sw)
		}
	}
	return out, nil
}

func (s *memStore) GetLatestSwap(ctx context.Context, tokenAddress string) (*domain.SwapRecord, error) {
	all, _ := s.GetSwapEvents(ctx, tokenAddress)
	if len(all) == 0 {
		return nil, nil
	}
	latest := all[len(all)-1]
	return &latest, nil
}

func (s *memStore) ReplaceHolderBalances(ctx context.Context, tokenAddress string, balances []domain.HolderBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.holders[tokenAddress] = append([]domain.HolderBalance(nil), balances...)
	return nil
}

func (s *memStore) GetHolderBalances(ctx context.Context, tokenAddress string) ([]domain.HolderBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.HolderBalance(nil), s.holders[tokenAddress]...), nil
}

func (s *memStore) GetSiblingHoldings(ctx context.Context, creatorAddress, excludeToken string) (map[string]int, error) {
	return s.siblings, nil
}

func (s *memStore) SaveFeeCollections(ctx context.Context, fees []domain.CreatorFeeCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range fees {
		if _, ok := s.fees[f.TxHash]; !ok {
			s.fees[f.TxHash] = f
		}
	}
	return nil
}

func (s *memStore) GetFeeCollections(ctx context.Context, tokenAddress string) ([]domain.CreatorFeeCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.CreatorFeeCollection
	for _, f := range s.fees {
		if f.TokenAddress == tokenAddress {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out, nil
}

func (s *memStore) GetWalletFlags(ctx context.Context, wallets []string) (map[string]domain.WalletFlags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.WalletFlags)
	for _, w := range wallets {
		if f, ok := s.flags[w]; ok {
			out[w] = f
		}
	}
	return out, nil
}

func (s *memStore) UpsertWalletFlags(ctx context.Context, flags []domain.WalletFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range flags {
		if existing, ok := s.flags[f.WalletAddress]; ok {
			// Notes and first-flagged belong to the first writer.
			f.Notes = existing.Notes
			f.FirstFlaggedAt = existing.FirstFlaggedAt
		}
		s.flags[f.WalletAddress] = f
	}
	return nil
}

func (s *memStore) SavePriceSnapshot(ctx context.Context, snapshot domain.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func (s *memStore) GetPriceAt(ctx context.Context, tokenAddress string, at time.Time) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *domain.PriceSnapshot
	for i := range s.snapshots {
		snap := &s.snapshots[i]
		if snap.TokenAddress != tokenAddress || snap.Timestamp.After(at) {
			continue
		}
		if best == nil || snap.Timestamp.After(best.Timestamp) {
			best = snap
		}
	}
	if best == nil {
		return 0, false, nil
	}
	return best.PriceUSD, true, nil
}

func (s *memStore) UpsertTokenAggregates(ctx context.Context, agg domain.TokenAggregates) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aggs[agg.TokenAddress] = agg
	return nil
}

func (s *memStore) GetTokenAggregates(ctx context.Context, tokenAddress string) (*domain.TokenAggregates, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.aggs[tokenAddress]
	if !ok {
		return nil, nil
	}
	return &agg, nil
}

func (s *memStore) ListTokenAggregates(ctx context.Context) ([]domain.TokenAggregates, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.TokenAggregates, 0, len(s.aggs))
	for _, agg := range s.aggs {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketCapUSD > out[j].MarketCapUSD })
	return out, nil
}

// memCursors is an in-memory cursor store. Block cursors are keyed because
// the realtime indexer keeps per-token repair points alongside the shared
// chain cursor.
type memCursors struct {
	mu           sync.Mutex
	blockCursors map[string]uint64
	feeCursor    uint64
	setErr       error
}

func (c *memCursors) GetBlockCursor(ctx context.Context, chainID string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.blockCursors[chainID], nil
}

func (c *memCursors) SetBlockCursor(ctx context.Context, chainID string, blockNumber uint64) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.blockCursors == nil {
		c.blockCursors = make(map[string]uint64)
	}
	c.blockCursors[chainID] = blockNumber
	return nil
}

func (c *memCursors) GetFeeCursor(ctx context.Context, chainID string) (uint64, error) {
	return c.feeCursor, nil
}

func (c *memCursors) SetFeeCursor(ctx context.Context, chainID string, blockNumber uint64) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.feeCursor = blockNumber
	return nil
}

// fakeReader serves canned events filtered by block range
type fakeReader struct {
	mu          sync.Mutex
	head        uint64
	supply      *big.Int
	creator     string
	transfers   []domain.TransferEvent
	curveTrades []domain.RawTradeEvent
	fees        []domain.CreatorFeeCollection

	transferErrFor map[string]error
	supplyErr      error
	feeErr         error

	transferRanges map[string][][2]uint64
	feeRanges      [][2]uint64
}

func (r *fakeReader) LatestBlock(ctx context.Context) (uint64, error) { return r.head, nil }

func (r *fakeReader) SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeReader) FilterTransfers(ctx context.Context, tokenAddress string, fromBlock, toBlock uint64) ([]domain.TransferEvent, error) {
	r.mu.Lock()
	if r.transferRanges == nil {
		r.transferRanges = make(map[string][][2]uint64)
	}
	r.transferRanges[tokenAddress] = append(r.transferRanges[tokenAddress], [2]uint64{fromBlock, toBlock})
	r.mu.Unlock()

	if err := r.transferErrFor[tokenAddress]; err != nil {
		return nil, err
	}
	var out []domain.TransferEvent
	for _, e := range r.transfers {
		if e.TokenAddress == tokenAddress && e.BlockNumber >= fromBlock && e.BlockNumber <= toBlock {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeReader) FilterCurveTrades(ctx context.Context, curveAddress string, fromBlock, toBlock uint64) ([]domain.RawTradeEvent, error) {
	var out []domain.RawTradeEvent
	for _, e := range r.curveTrades {
		if meta := e.Meta(); meta.BlockNumber >= fromBlock && meta.BlockNumber <= toBlock {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeReader) FilterPairSwaps(ctx context.Context, pairAddress string, fromBlock, toBlock uint64) ([]domain.RawTradeEvent, error) {
	return nil, nil
}

func (r *fakeReader) FilterFeeCollections(ctx context.Context, curveAddress string, fromBlock, toBlock uint64) ([]domain.CreatorFeeCollection, error) {
	if r.feeErr != nil {
		return nil, r.feeErr
	}
	r.mu.Lock()
	r.feeRanges = append(r.feeRanges, [2]uint64{fromBlock, toBlock})
	r.mu.Unlock()
	var out []domain.CreatorFeeCollection
	for _, f := range r.fees {
		if f.BlockNumber >= fromBlock && f.BlockNumber <= toBlock {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeReader) FindGraduation(ctx context.Context, curveAddress string, fromBlock, toBlock uint64) (*chain.GraduationEvent, error) {
	return nil, nil
}

func (r *fakeReader) TotalSupply(ctx context.Context, tokenAddress string) (*big.Int, error) {
	if r.supplyErr != nil {
		return nil, r.supplyErr
	}
	return new(big.Int).Set(r.supply), nil
}

func (r *fakeReader) Creator(ctx context.Context, curveAddress string) (string, error) {
	if r.creator == "" {
		return "", domain.ErrMethodNotSupported
	}
	return r.creator, nil
}

func (r *fakeReader) PairTokens(ctx context.Context, pairAddress string) (string, string, error) {
	return "", "", errors.New("no pair")
}

func (r *fakeReader) PairReserves(ctx context.Context, pairAddress string) (*big.Int, *big.Int, error) {
	return nil, nil, errors.New("no pair")
}

func (r *fakeReader) Close() {}

// fakeOracle serves a fixed BNB rate
type fakeOracle struct {
	price float64
}

func (o *fakeOracle) BNBPriceUSD(ctx context.Context) float64 { return o.price }

func (o *fakeOracle) WeiToUSD(ctx context.Context, wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	bnbF, _ := new(big.Float).Quo(
		new(big.Float).SetInt(wei),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
	).Float64()
	return bnbF * o.price
}

func transfer(from, to string, amount int64, blockNumber uint64, logIndex uint) domain.TransferEvent {
	return domain.TransferEvent{
		TokenAddress: tokenAddr,
		From:         from,
		To:           to,
		Amount:       big.NewInt(amount),
		TxHash:       fmt.Sprintf("0xtx%d-%d", blockNumber, logIndex),
		BlockNumber:  blockNumber,
		LogIndex:     logIndex,
		Timestamp:    time.Unix(1_700_000_000+int64(blockNumber), 0),
	}
}

func testSetup() (*memStore, *fakeReader, *indexer.Reconciler, *domain.Token) {
	st := newMemStore()
	reader := &fakeReader{
		head:    200,
		supply:  big.NewInt(1_000_000),
		creator: alice,
		transfers: []domain.TransferEvent{
			transfer(domain.ZeroAddress, tokenAddr, 1_000_000, 10, 0),
			transfer(tokenAddr, alice, 100_000, 11, 0),
			transfer(alice, bob, 30_000, 12, 0),
		},
		curveTrades: []domain.RawTradeEvent{
			domain.CurveBuyEvent{
				Buyer:     alice,
				AssetIn:   big.NewInt(1_000_000_000_000_000_000), // 1 BNB
				TokensOut: big.NewInt(100_000),
				Fee:       big.NewInt(0),
				EventMeta: domain.EventMeta{
					TxHash:      "0xtx11-0",
					BlockNumber: 11,
					LogIndex:    1,
					Timestamp:   time.Unix(1_700_000_011, 0),
				},
			},
		},
	}
	clock := &fakeClock{now: time.Unix(1_700_000_100, 0)}
	reconciler := indexer.NewReconciler(st, reader, &fakeOracle{price: 600}, clock)

	token := &domain.Token{Address: tokenAddr, DeployBlock: 10}
	_, _ = st.CreateToken(context.Background(), token)

	return st, reader, reconciler, token
}

func TestReconcileRange_FullPass(t *testing.T) {
	ctx := context.Background()
	st, _, reconciler, token := testSetup()

	require.NoError(t, reconciler.ReconcileRange(ctx, token, 1, 100))

	transfers, _ := st.GetTransferEvents(ctx, tokenAddr)
	assert.Len(t, transfers, 3)

	swaps, _ := st.GetSwapEvents(ctx, tokenAddr)
	require.Len(t, swaps, 1)
	assert.True(t, swaps[0].IsBuy)
	assert.Equal(t, alice, swaps[0].Trader)

	holders, _ := st.GetHolderBalances(ctx, tokenAddr)
	require.Len(t, holders, 2)
	assert.Equal(t, alice, holders[0].HolderAddress)
	assert.Equal(t, big.NewInt(70_000), holders[0].Balance)
	assert.Equal(t, bob, holders[1].HolderAddress)

	agg, err := st.GetTokenAggregates(ctx, tokenAddr)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, 2, agg.HoldersCount)
	assert.Equal(t, 10, agg.Top10Percent)
	// Creator is Alice, holding 70,000 of 1,000,000.
	assert.Equal(t, 7, agg.DevPercent)

	// Creator facts were pulled from the contract.
	stored, _ := st.GetToken(ctx, tokenAddr)
	assert.Equal(t, alice, stored.CreatorAddress)
	assert.Equal(t, big.NewInt(1_000_000), stored.TotalSupply)
}

func TestReconcileRange_IdempotentReplay(t *testing.T) {
	ctx := context.Background()
	st, _, reconciler, token := testSetup()

	require.NoError(t, reconciler.ReconcileRange(ctx, token, 1, 100))

	firstHolders, _ := st.GetHolderBalances(ctx, tokenAddr)
	firstAgg, _ := st.GetTokenAggregates(ctx, tokenAddr)
	firstTransfers, _ := st.GetTransferEvents(ctx, tokenAddr)
	firstSwaps, _ := st.GetSwapEvents(ctx, tokenAddr)
	firstFlags := make(map[string]domain.WalletFlags, len(st.flags))
	for addr, f := range st.flags {
		firstFlags[addr] = f
	}

	// Re-running the same range, as after a crash-restart, changes nothing.
	token2, _ := st.GetToken(ctx, tokenAddr)
	require.NoError(t, reconciler.ReconcileRange(ctx, token2, 1, 100))

	secondHolders, _ := st.GetHolderBalances(ctx, tokenAddr)
	secondAgg, _ := st.GetTokenAggregates(ctx, tokenAddr)
	secondTransfers, _ := st.GetTransferEvents(ctx, tokenAddr)
	secondSwaps, _ := st.GetSwapEvents(ctx, tokenAddr)

	assert.Equal(t, firstTransfers, secondTransfers)
	assert.Equal(t, firstSwaps, secondSwaps)
	assert.Equal(t, firstHolders, secondHolders)
	assert.Equal(t, firstAgg, secondAgg)
	// Flag rows converge too: scores count wallets turning bad, not passes.
	assert.Equal(t, firstFlags, st.flags)
}

func TestReconcileRange_NegativeFoldSurfaces(t *testing.T) {
	ctx := context.Background()
	st, reader, reconciler, token := testSetup()

	// Drop the mint: Alice spends tokens the log never showed her receiving.
	reader.transfers = []domain.TransferEvent{
		transfer(tokenAddr, alice, 100_000, 11, 0),
		transfer(alice, bob, 130_000, 12, 0),
	}

	err := reconciler.ReconcileRange(ctx, token, 1, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingestion gap")

	// Nothing derived was published.
	holders, _ := st.GetHolderBalances(ctx, tokenAddr)
	assert.Empty(t, holders)
	agg, _ := st.GetTokenAggregates(ctx, tokenAddr)
	assert.Nil(t, agg)
}

func TestBackfiller_TokenFailureIsolated(t *testing.T) {
	ctx := context.Background()
	st, reader, reconciler, _ := testSetup()

	other := &domain.Token{Address: "0xbad0000000000000000000000000000000000009", DeployBlock: 5}
	_, err := st.CreateToken(ctx, other)
	require.NoError(t, err)
	reader.transferErrFor = map[string]error{other.Address: errors.New("rpc timeout")}

	backfiller := indexer.NewBackfiller(st, reconciler, indexer.BackfillConfig{WorkerPoolSize: 2})
	require.NoError(t, backfiller.Run(ctx, 200))

	// The healthy token was fully processed despite the other's failure.
	holders, _ := st.GetHolderBalances(ctx, tokenAddr)
	assert.Len(t, holders, 2)
}

func TestReconcileRange_SupplyAccessorMissing(t *testing.T) {
	ctx := context.Background()
	st, reader, reconciler, token := testSetup()
	reader.supplyErr = domain.ErrMethodNotSupported

	require.NoError(t, reconciler.ReconcileRange(ctx, token, 1, 100))

	// Holder accounting still runs; supply-derived percentages sit at zero.
	holders, _ := st.GetHolderBalances(ctx, tokenAddr)
	require.Len(t, holders, 2)
	agg, _ := st.GetTokenAggregates(ctx, tokenAddr)
	require.NotNil(t, agg)
	assert.Equal(t, 2, agg.HoldersCount)
	assert.Zero(t, agg.Top10Percent)
}

func TestRealtime_AnnouncedTokenHistoryIndexed(t *testing.T) {
	ctx := context.Background()
	st, reader, reconciler, token := testSetup()

	realtime := indexer.NewRealtime(st, &memCursors{}, reconciler, reader, nil, indexer.RealtimeConfig{
		ChainID: domain.ChainBSCMainnet,
	})

	// The registering process inserts the row before publishing, so the
	// announcement arrives with the token already present. Its history must
	// still be indexed from the deploy block.
	require.NoError(t, realtime.HandleTokenCreated(ctx, &domain.TokenCreated{
		Address:     tokenAddr,
		DeployBlock: token.DeployBlock,
	}))

	require.Len(t, reader.transferRanges[tokenAddr], 1)
	assert.Equal(t, [2]uint64{10, 200}, reader.transferRanges[tokenAddr][0])

	// The mint made it in, so the fold is complete.
	transfers, _ := st.GetTransferEvents(ctx, tokenAddr)
	assert.Len(t, transfers, 3)
	holders, _ := st.GetHolderBalances(ctx, tokenAddr)
	require.Len(t, holders, 2)
	assert.Equal(t, big.NewInt(70_000), holders[0].Balance)
}

func TestRealtime_FailingTokenDoesNotStallOthers(t *testing.T) {
	ctx := context.Background()
	st, reader, reconciler, _ := testSetup()
	cursors := &memCursors{}

	bad := &domain.Token{Address: "0xbad0000000000000000000000000000000000009", DeployBlock: 5}
	_, err := st.CreateToken(ctx, bad)
	require.NoError(t, err)
	reader.transferErrFor = map[string]error{bad.Address: errors.New("execution reverted")}

	realtime := indexer.NewRealtime(st, cursors, reconciler, reader, nil, indexer.RealtimeConfig{
		ChainID:        domain.ChainBSCMainnet,
		WorkerPoolSize: 2,
	})

	// The broken token fails every pass, yet the shared cursor keeps moving
	// and the healthy token stays current.
	require.NoError(t, realtime.ProcessRange(ctx, 1, 100))
	require.NoError(t, realtime.ProcessRange(ctx, 101, 200))

	chainKey := string(domain.ChainBSCMainnet)
	shared, _ := cursors.GetBlockCursor(ctx, chainKey)
	assert.Equal(t, uint64(200), shared)
	holders, _ := st.GetHolderBalances(ctx, tokenAddr)
	assert.Len(t, holders, 2)

	// The broken token's repair point is pinned at its first failed range.
	mark, _ := cursors.GetBlockCursor(ctx, chainKey+":"+bad.Address)
	assert.Equal(t, uint64(1), mark)

	// Once the token recovers, the next pass reaches back over the gap.
	reader.transferErrFor = nil
	require.NoError(t, realtime.ProcessRange(ctx, 201, 300))

	badRanges := reader.transferRanges[bad.Address]
	require.NotEmpty(t, badRanges)
	assert.Equal(t, [2]uint64{1, 300}, badRanges[len(badRanges)-1])

	shared, _ = cursors.GetBlockCursor(ctx, chainKey)
	assert.Equal(t, uint64(300), shared)
	mark, _ = cursors.GetBlockCursor(ctx, chainKey+":"+bad.Address)
	assert.Equal(t, uint64(301), mark)
}

func TestFeeSweep_WatermarkAdvance(t *testing.T) {
	ctx := context.Background()
	st, reader, reconciler, _ := testSetup()
	reader.head = 5000
	cursors := &memCursors{feeCursor: 1000}

	sweeper := indexer.NewFeeSweeper(st, cursors, reconciler, reader, domain.ChainBSCMainnet, indexer.FeeSweepConfig{MaxBlocks: 1000})

	// Far behind: one sweep advances by exactly the cap.
	require.NoError(t, sweeper.Sweep(ctx))
	assert.Equal(t, uint64(2000), cursors.feeCursor)
	require.Len(t, reader.feeRanges, 1)
	assert.Equal(t, [2]uint64{1001, 2000}, reader.feeRanges[0])

	// Nearly caught up: the sweep stops at the head.
	cursors.feeCursor = 4500
	reader.feeRanges = nil
	require.NoError(t, sweeper.Sweep(ctx))
	assert.Equal(t, uint64(5000), cursors.feeCursor)
	require.Len(t, reader.feeRanges, 1)
	assert.Equal(t, [2]uint64{4501, 5000}, reader.feeRanges[0])

	// Caught up: nothing to do.
	reader.feeRanges = nil
	require.NoError(t, sweeper.Sweep(ctx))
	assert.Empty(t, reader.feeRanges)
	assert.Equal(t, uint64(5000), cursors.feeCursor)
}

func TestFeeSweep_FirstRunStartsOneWindowBack(t *testing.T) {
	ctx := context.Background()
	st, reader, reconciler, _ := testSetup()
	reader.head = 5000
	cursors := &memCursors{}

	sweeper := indexer.NewFeeSweeper(st, cursors, reconciler, reader, domain.ChainBSCMainnet, indexer.FeeSweepConfig{MaxBlocks: 1000})

	require.NoError(t, sweeper.Sweep(ctx))
	require.Len(t, reader.feeRanges, 1)
	assert.Equal(t, [2]uint64{4001, 5000}, reader.feeRanges[0])
	assert.Equal(t, uint64(5000), cursors.feeCursor)
}

func TestFeeSweep_FailureLeavesCursor(t *testing.T) {
	ctx := context.Background()
	st, reader, reconciler, _ := testSetup()
	reader.head = 5000
	reader.feeErr = errors.New("rpc timeout")
	cursors := &memCursors{feeCursor: 1000}

	sweeper := indexer.NewFeeSweeper(st, cursors, reconciler, reader, domain.ChainBSCMainnet, indexer.FeeSweepConfig{MaxBlocks: 1000})

	require.Error(t, sweeper.Sweep(ctx))
	assert.Equal(t, uint64(1000), cursors.feeCursor)

	// The retry covers the same range once the RPC recovers.
	reader.feeErr = nil
	require.NoError(t, sweeper.Sweep(ctx))
	require.Len(t, reader.feeRanges, 1)
	assert.Equal(t, [2]uint64{1001, 2000}, reader.feeRanges[0])
}

func TestFeeSweep_RecordsFeesWithUSDValuation(t *testing.T) {
	ctx := context.Background()
	st, reader, reconciler, _ := testSetup()
	reader.head = 5000
	reader.fees = []domain.CreatorFeeCollection{
		{
			CreatorAddress: alice,
			AmountWei:      big.NewInt(500_000_000_000_000_000), // 0.5 BNB
			TxHash:         "0xfee1",
			BlockNumber:    4500,
			Timestamp:      time.Unix(1_700_000_000, 0),
		},
	}
	cursors := &memCursors{feeCursor: 4000}

	sweeper := indexer.NewFeeSweeper(st, cursors, reconciler, reader, domain.ChainBSCMainnet, indexer.FeeSweepConfig{MaxBlocks: 1000})
	require.NoError(t, sweeper.Sweep(ctx))

	fees, err := st.GetFeeCollections(ctx, tokenAddr)
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, tokenAddr, fees[0].TokenAddress)
	assert.InDelta(t, 300.0, fees[0].AmountUSD, 1e-9)
}
