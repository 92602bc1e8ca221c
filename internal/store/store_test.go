package store

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// =============================================================================
// Test Data Builders
// =============================================================================

const (
	testTokenAddress   = "0xAbCd000000000000000000000000000000000001"
	testCreatorAddress = "0x1111000000000000000000000000000000000002"
	testHolderA        = "0x2222000000000000000000000000000000000003"
	testHolderB        = "0x3333000000000000000000000000000000000004"
	testPairAddress    = "0x4444000000000000000000000000000000000005"
)

func buildTestToken(address string) *domain.Token {
	return &domain.Token{
		Address:        address,
		CreatorAddress: testCreatorAddress,
		TotalSupply:    big.NewInt(1_000_000),
		DeployBlock:    100,
	}
}

func buildTransferEvent(txHash string, logIndex uint, blockNumber uint64, amount int64) domain.TransferEvent {
	return domain.TransferEvent{
		TokenAddress: testTokenAddress,
		From:         testHolderA,
		To:           testHolderB,
		Amount:       big.NewInt(amount),
		TxHash:       txHash,
		BlockNumber:  blockNumber,
		LogIndex:     logIndex,
		Timestamp:    time.Unix(1_700_000_000+int64(blockNumber), 0).UTC(),
	}
}

func buildSwapRecord(txHash string, logIndex uint, blockNumber uint64, isBuy bool, priceUSD float64) domain.SwapRecord {
	return domain.SwapRecord{
		TokenAddress:  testTokenAddress,
		Trader:        testHolderA,
		IsBuy:         isBuy,
		TokenAmount:   big.NewInt(1000),
		CounterAmount: big.NewInt(2_000_000),
		PriceUSD:      priceUSD,
		TxHash:        txHash,
		BlockNumber:   blockNumber,
		LogIndex:      logIndex,
		Timestamp:     time.Unix(1_700_000_000+int64(blockNumber), 0).UTC(),
	}
}

// =============================================================================
// Test: Tokens
// =============================================================================

func testCreateAndGetToken(t *testing.T, s Store) {
	ctx := context.Background()

	created, err := s.CreateToken(ctx, buildTestToken(testTokenAddress))
	require.NoError(t, err)
	assert.True(t, created)

	// Second insert of the same address is a no-op.
	created, err = s.CreateToken(ctx, buildTestToken(testTokenAddress))
	require.NoError(t, err)
	assert.False(t, created)

	// Lookups are case-insensitive; stored addresses are lowercased.
	token, err := s.GetToken(ctx, testTokenAddress)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, domain.NormalizeAddress(testTokenAddress), token.Address)
	assert.Equal(t, domain.NormalizeAddress(testCreatorAddress), token.CreatorAddress)
	assert.Equal(t, big.NewInt(1_000_000), token.TotalSupply)
	assert.Equal(t, uint64(100), token.DeployBlock)
	assert.False(t, token.Graduated)
	assert.Nil(t, token.GraduatedAt)

	missing, err := s.GetToken(ctx, "0x9999000000000000000000000000000000000099")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testUpdateToken(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.CreateToken(ctx, buildTestToken(testTokenAddress))
	require.NoError(t, err)

	graduatedAt := time.Unix(1_700_000_500, 0).UTC()
	token, err := s.GetToken(ctx, testTokenAddress)
	require.NoError(t, err)
	token.TotalSupply = big.NewInt(2_000_000)
	token.Graduated = true
	token.GraduatedAt = &graduatedAt
	token.PairAddress = testPairAddress

	require.NoError(t, s.UpdateToken(ctx, token))

	updated, err := s.GetToken(ctx, testTokenAddress)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, big.NewInt(2_000_000), updated.TotalSupply)
	assert.True(t, updated.Graduated)
	require.NotNil(t, updated.GraduatedAt)
	assert.True(t, updated.GraduatedAt.Equal(graduatedAt))
	assert.Equal(t, domain.NormalizeAddress(testPairAddress), updated.PairAddress)
}

func testListTokens(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.CreateToken(ctx, buildTestToken(testTokenAddress))
	require.NoError(t, err)
	_, err = s.CreateToken(ctx, buildTestToken("0x5555000000000000000000000000000000000006"))
	require.NoError(t, err)

	tokens, err := s.ListTokens(ctx)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

// =============================================================================
// Test: Transfer Events
// =============================================================================

func testTransferEvents(t *testing.T, s Store) {
	ctx := context.Background()

	events := []domain.TransferEvent{
		buildTransferEvent("0xbb", 0, 102, 50),
		buildTransferEvent("0xaa", 1, 101, 30),
		buildTransferEvent("0xaa", 0, 101, 20),
	}
	require.NoError(t, s.SaveTransferEvents(ctx, events))

	// Replaying the same events plus one new one only adds the new row.
	replay := append(events, buildTransferEvent("0xcc", 0, 103, 70))
	require.NoError(t, s.SaveTransferEvents(ctx, replay))

	got, err := s.GetTransferEvents(ctx, testTokenAddress)
	require.NoError(t, err)
	require.Len(t, got, 4)

	// Chain order: block ascending, log index ascending within a block.
	assert.Equal(t, "0xaa", got[0].TxHash)
	assert.Equal(t, uint(0), got[0].LogIndex)
	assert.Equal(t, "0xaa", got[1].TxHash)
	assert.Equal(t, uint(1), got[1].LogIndex)
	assert.Equal(t, "0xbb", got[2].TxHash)
	assert.Equal(t, "0xcc", got[3].TxHash)
}

func testTransferEventUint256RoundTrip(t *testing.T, s Store) {
	ctx := context.Background()

	// Max uint256; does not fit in any native numeric column type.
	maxUint256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	event := buildTransferEvent("0xdd", 0, 104, 0)
	event.Amount = maxUint256

	require.NoError(t, s.SaveTransferEvents(ctx, []domain.TransferEvent{event}))

	got, err := s.GetTransferEvents(ctx, testTokenAddress)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Amount.Cmp(maxUint256))
}

// =============================================================================
// Test: Swap Events
// =============================================================================

func testSwapEvents(t *testing.T, s Store) {
	ctx := context.Background()

	swaps := []domain.SwapRecord{
		buildSwapRecord("0xs1", 0, 101, true, 1.0),
		buildSwapRecord("0xs2", 0, 102, false, 1.1),
		buildSwapRecord("0xs3", 0, 103, true, 1.2),
	}
	require.NoError(t, s.SaveSwapEvents(ctx, swaps))
	require.NoError(t, s.SaveSwapEvents(ctx, swaps)) // idempotent

	got, err := s.GetSwapEvents(ctx, testTokenAddress)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "0xs1", got[0].TxHash)
	assert.Equal(t, "0xs3", got[2].TxHash)

	since, err := s.GetSwapEventsSince(ctx, testTokenAddress, time.Unix(1_700_000_102, 0).UTC())
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, "0xs2", since[0].TxHash)

	latest, err := s.GetLatestSwap(ctx, testTokenAddress)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "0xs3", latest.TxHash)
	assert.InDelta(t, 1.2, latest.PriceUSD, 1e-9)

	none, err := s.GetLatestSwap(ctx, "0x9999000000000000000000000000000000000099")
	require.NoError(t, err)
	assert.Nil(t, none)
}

// =============================================================================
// Test: Holder Balances
// =============================================================================

func testHolderBalances(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	first := []domain.HolderBalance{
		{TokenAddress: testTokenAddress, HolderAddress: testHolderA, Balance: big.NewInt(100), UpdatedAt: now},
		{TokenAddress: testTokenAddress, HolderAddress: testHolderB, Balance: big.NewInt(900), UpdatedAt: now},
	}
	require.NoError(t, s.ReplaceHolderBalances(ctx, testTokenAddress, first))

	got, err := s.GetHolderBalances(ctx, testTokenAddress)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Sorted by balance descending, numerically rather than lexically.
	assert.Equal(t, domain.NormalizeAddress(testHolderB), got[0].HolderAddress)
	assert.Equal(t, big.NewInt(900), got[0].Balance)

	// A replace is wholesale: holders absent from the new set are gone.
	second := []domain.HolderBalance{
		{TokenAddress: testTokenAddress, HolderAddress: testHolderA, Balance: big.NewInt(150), UpdatedAt: now},
	}
	require.NoError(t, s.ReplaceHolderBalances(ctx, testTokenAddress, second))

	got, err = s.GetHolderBalances(ctx, testTokenAddress)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.NormalizeAddress(testHolderA), got[0].HolderAddress)
	assert.Equal(t, big.NewInt(150), got[0].Balance)

	require.NoError(t, s.ReplaceHolderBalances(ctx, testTokenAddress, nil))
	got, err = s.GetHolderBalances(ctx, testTokenAddress)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testSiblingHoldings(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	siblingToken := "0x6666000000000000000000000000000000000007"
	unrelatedToken := "0x7777000000000000000000000000000000000008"

	_, err := s.CreateToken(ctx, buildTestToken(testTokenAddress))
	require.NoError(t, err)
	_, err = s.CreateToken(ctx, buildTestToken(siblingToken))
	require.NoError(t, err)

	unrelated := buildTestToken(unrelatedToken)
	unrelated.CreatorAddress = "0x8888000000000000000000000000000000000009"
	_, err = s.CreateToken(ctx, unrelated)
	require.NoError(t, err)

	require.NoError(t, s.ReplaceHolderBalances(ctx, siblingToken, []domain.HolderBalance{
		{TokenAddress: siblingToken, HolderAddress: testHolderA, Balance: big.NewInt(10), UpdatedAt: now},
	}))
	require.NoError(t, s.ReplaceHolderBalances(ctx, unrelatedToken, []domain.HolderBalance{
		{TokenAddress: unrelatedToken, HolderAddress: testHolderA, Balance: big.NewInt(10), UpdatedAt: now},
	}))
	require.NoError(t, s.ReplaceHolderBalances(ctx, testTokenAddress, []domain.HolderBalance{
		{TokenAddress: testTokenAddress, HolderAddress: testHolderB, Balance: big.NewInt(10), UpdatedAt: now},
	}))

	// Holder A holds one sibling by the same creator; the excluded token's own
	// balances and the other creator's token do not count.
	holdings, err := s.GetSiblingHoldings(ctx, testCreatorAddress, testTokenAddress)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{domain.NormalizeAddress(testHolderA): 1}, holdings)
}

// =============================================================================
// Test: Fee Collections
// =============================================================================

func testFeeCollections(t *testing.T, s Store) {
	ctx := context.Background()

	fees := []domain.CreatorFeeCollection{
		{
			TokenAddress:   testTokenAddress,
			CreatorAddress: testCreatorAddress,
			AmountWei:      big.NewInt(500_000),
			AmountUSD:      0.3,
			TxHash:         "0xf2",
			BlockNumber:    205,
			Timestamp:      time.Unix(1_700_000_205, 0).UTC(),
		},
		{
			TokenAddress:   testTokenAddress,
			CreatorAddress: testCreatorAddress,
			AmountWei:      big.NewInt(250_000),
			AmountUSD:      0.15,
			TxHash:         "0xf1",
			BlockNumber:    201,
			Timestamp:      time.Unix(1_700_000_201, 0).UTC(),
		},
	}
	require.NoError(t, s.SaveFeeCollections(ctx, fees))
	require.NoError(t, s.SaveFeeCollections(ctx, fees)) // idempotent

	got, err := s.GetFeeCollections(ctx, testTokenAddress)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0xf1", got[0].TxHash)
	assert.Equal(t, "0xf2", got[1].TxHash)
	assert.Equal(t, big.NewInt(250_000), got[0].AmountWei)
}

// =============================================================================
// Test: Wallet Flags
// =============================================================================

func testWalletFlags(t *testing.T, s Store) {
	ctx := context.Background()
	firstFlagged := time.Unix(1_700_000_000, 0).UTC()

	require.NoError(t, s.UpsertWalletFlags(ctx, []domain.WalletFlags{{
		WalletAddress:  testHolderA,
		IsSniper:       true,
		SniperScore:    1,
		Notes:          "manually reviewed",
		FirstFlaggedAt: firstFlagged,
		UpdatedAt:      firstFlagged,
	}}))

	// A later indexing pass bumps the counters but never touches operator
	// notes or the first-flagged timestamp.
	later := firstFlagged.Add(time.Hour)
	require.NoError(t, s.UpsertWalletFlags(ctx, []domain.WalletFlags{{
		WalletAddress:  testHolderA,
		IsSniper:       true,
		IsInsider:      true,
		SniperScore:    2,
		FirstFlaggedAt: later,
		UpdatedAt:      later,
	}}))

	flags, err := s.GetWalletFlags(ctx, []string{testHolderA, testHolderB})
	require.NoError(t, err)
	require.Len(t, flags, 1)

	f := flags[domain.NormalizeAddress(testHolderA)]
	assert.True(t, f.IsSniper)
	assert.True(t, f.IsInsider)
	assert.Equal(t, 2, f.SniperScore)
	assert.Equal(t, "manually reviewed", f.Notes)
	assert.True(t, f.FirstFlaggedAt.Equal(firstFlagged))
	assert.True(t, f.UpdatedAt.Equal(later))

	empty, err := s.GetWalletFlags(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// =============================================================================
// Test: Price Snapshots
// =============================================================================

func testPriceSnapshots(t *testing.T, s Store) {
	ctx := context.Background()
	t1 := time.Unix(1_700_000_000, 0).UTC()
	t2 := t1.Add(time.Hour)

	require.NoError(t, s.SavePriceSnapshot(ctx, domain.PriceSnapshot{
		TokenAddress: testTokenAddress, PriceUSD: 1.0, Timestamp: t1,
	}))
	require.NoError(t, s.SavePriceSnapshot(ctx, domain.PriceSnapshot{
		TokenAddress: testTokenAddress, PriceUSD: 2.0, Timestamp: t2,
	}))

	// Between the two snapshots the older one is the reference.
	price, ok, err := s.GetPriceAt(ctx, testTokenAddress, t1.Add(30*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, price, 1e-9)

	price, ok, err = s.GetPriceAt(ctx, testTokenAddress, t2.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 2.0, price, 1e-9)

	_, ok, err = s.GetPriceAt(ctx, testTokenAddress, t1.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// Test: Token Aggregates
// =============================================================================

func testTokenAggregates(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	agg := domain.TokenAggregates{
		TokenAddress:  testTokenAddress,
		HoldersCount:  10,
		PriceUSD:      1.5,
		MarketCapUSD:  1500,
		Top10Percent:  42,
		LastIndexedAt: now,
	}
	require.NoError(t, s.UpsertTokenAggregates(ctx, agg))

	// The second write overwrites the row wholesale.
	agg.HoldersCount = 12
	agg.MarketCapUSD = 1800
	require.NoError(t, s.UpsertTokenAggregates(ctx, agg))

	got, err := s.GetTokenAggregates(ctx, testTokenAddress)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12, got.HoldersCount)
	assert.InDelta(t, 1800, got.MarketCapUSD, 1e-9)
	assert.Equal(t, 42, got.Top10Percent)

	missing, err := s.GetTokenAggregates(ctx, "0x9999000000000000000000000000000000000099")
	require.NoError(t, err)
	assert.Nil(t, missing)

	other := domain.TokenAggregates{
		TokenAddress:  "0x5555000000000000000000000000000000000006",
		MarketCapUSD:  9000,
		LastIndexedAt: now,
	}
	require.NoError(t, s.UpsertTokenAggregates(ctx, other))

	all, err := s.ListTokenAggregates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, other.TokenAddress, all[0].TokenAddress) // market cap descending
}

// =============================================================================
// Test Runner - runs all tests against a given store implementation
// =============================================================================

func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(*testing.T, Store)
	}{
		{"CreateAndGetToken", testCreateAndGetToken},
		{"UpdateToken", testUpdateToken},
		{"ListTokens", testListTokens},
		{"TransferEvents", testTransferEvents},
		{"TransferEventUint256RoundTrip", testTransferEventUint256RoundTrip},
		{"SwapEvents", testSwapEvents},
		{"HolderBalances", testHolderBalances},
		{"SiblingHoldings", testSiblingHoldings},
		{"FeeCollections", testFeeCollections},
		{"WalletFlags", testWalletFlags},
		{"PriceSnapshots", testPriceSnapshots},
		{"TokenAggregates", testTokenAggregates},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}
