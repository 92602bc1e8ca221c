package domain

import (
	"math/big"
	"strings"
	"time"
)

// NormalizeAddress lowercases a hex address or tx hash so that all
// persisted keys compare case-insensitively.
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

// Token describes a tracked bonding-curve token. The trading contract
// address is the primary key; the bonding-curve contract may be a separate
// address on some deployments.
type Token struct {
	Address             string
	BondingCurveAddress string
	PairAddress         string
	CreatorAddress      string
	TotalSupply         *big.Int
	Graduated           bool
	GraduatedAt         *time.Time
	DeployBlock         uint64
}

// CurveAddress returns the contract that emits Buy/Sell events for this
// token: the dedicated bonding-curve contract when present, otherwise the
// token contract itself.
func (t *Token) CurveAddress() string {
	if t.BondingCurveAddress != "" {
		return t.BondingCurveAddress
	}
	return t.Address
}

// TransferEvent is an observed ERC-20 Transfer log. Immutable once stored;
// natural key (TxHash, TokenAddress, LogIndex).
type TransferEvent struct {
	TokenAddress string
	From         string
	To           string
	Amount       *big.Int
	TxHash       string
	BlockNumber  uint64
	LogIndex     uint
	Timestamp    time.Time
}

// EventMeta carries the log coordinates shared by every raw trade event.
type EventMeta struct {
	TxHash      string
	BlockNumber uint64
	LogIndex    uint
	Timestamp   time.Time
}

// RawTradeEvent is the tagged union of the three source event shapes that
// normalize into a SwapRecord. One variant per ABI; the normalizer has one
// mapping function per variant so the compiler catches missing cases.
type RawTradeEvent interface {
	Meta() EventMeta
}

// CurveBuyEvent is a bonding-curve Buy(user, assetIn, tokensOut, fee) log.
type CurveBuyEvent struct {
	Buyer     string
	AssetIn   *big.Int
	TokensOut *big.Int
	Fee       *big.Int
	EventMeta
}

func (e CurveBuyEvent) Meta() EventMeta { return e.EventMeta }

// CurveSellEvent is a bonding-curve Sell(user, tokensIn, assetOut, fee) log.
type CurveSellEvent struct {
	Seller   string
	TokensIn *big.Int
	AssetOut *big.Int
	Fee      *big.Int
	EventMeta
}

func (e CurveSellEvent) Meta() EventMeta { return e.EventMeta }

// PairSwapEvent is a DEX pair Swap(sender, amount0In, amount1In, amount0Out,
// amount1Out, to) log. Direction depends on which slot the tracked token
// occupies in the pair.
type PairSwapEvent struct {
	PairAddress string
	Sender      string
	To          string
	Amount0In   *big.Int
	Amount1In   *big.Int
	Amount0Out  *big.Int
	Amount1Out  *big.Int
	EventMeta
}

func (e PairSwapEvent) Meta() EventMeta { return e.EventMeta }

// SwapRecord is the canonical normalized trade. Immutable once stored;
// natural key (TxHash, LogIndex).
type SwapRecord struct {
	TokenAddress  string
	PairAddress   string
	Trader        string
	IsBuy         bool
	TokenAmount   *big.Int
	CounterAmount *big.Int
	PriceUSD      float64
	TxHash        string
	BlockNumber   uint64
	LogIndex      uint
	Timestamp     time.Time
}

// HolderBalance is the materialized current balance for one holder of one
// token. Fully recomputable from TransferEvent folds.
type HolderBalance struct {
	TokenAddress  string
	HolderAddress string
	Balance       *big.Int
	UpdatedAt     time.Time
}

// CreatorFeeCollection is an observed creator-fee claim. Immutable once
// stored; natural key TxHash.
type CreatorFeeCollection struct {
	TokenAddress   string
	CreatorAddress string
	AmountWei      *big.Int
	AmountUSD      float64
	TxHash         string
	BlockNumber    uint64
	Timestamp      time.Time
}

// WalletFlags is the global (cross-token) risk register for one wallet.
// Flags merge additively: once set, a flag stays set unless explicitly
// cleared by an operator.
type WalletFlags struct {
	WalletAddress      string
	IsPhishing         bool
	IsSniper           bool
	IsInsider          bool
	SniperScore        int
	InsiderConnections int
	PhishingReports    int
	Notes              string
	FirstFlaggedAt     time.Time
	UpdatedAt          time.Time
}

// PriceSnapshot is an append-only price observation used for percentage
// change lookups at 5m/1h/6h/24h horizons.
type PriceSnapshot struct {
	TokenAddress string
	PriceUSD     float64
	Timestamp    time.Time
}

// HolderStats is the output of one balance-ledger fold.
type HolderStats struct {
	// Holders are positive-balance addresses, excluding the token contract
	// and its paired liquidity address, sorted descending by balance.
	Holders []HolderBalance
	// Top10Percent is the first 10 holders' combined balance as a whole
	// percentage of total supply.
	Top10Percent int
	// DevPercent is the creator's raw balance as a whole percentage of
	// total supply. The creator is a normal holder, so this is computed
	// before the contract/pair exclusion.
	DevPercent int
	// Burned is the total amount sent to the zero address.
	Burned *big.Int
}

// ClassificationStats is the output of one wallet-classification pass.
type ClassificationStats struct {
	SniperPercent   int
	InsiderPercent  int
	PhishingPercent int
	SniperCount     int
	InsiderCount    int
	PhishingCount   int
	Flags           []WalletFlags
}

// TokenAggregates is the wholesale-overwritten per-token metric block the
// read API serves. Derived entirely from current ledger state.
type TokenAggregates struct {
	TokenAddress    string
	HoldersCount    int
	Txns24h         int
	PriceUSD        float64
	MarketCapUSD    float64
	LiquidityUSD    float64
	Volume24hUSD    float64
	PriceChange5m   float64
	PriceChange1h   float64
	PriceChange6h   float64
	PriceChange24h  float64
	Buys24h         int
	Sells24h        int
	BuyVolume24h    float64
	SellVolume24h   float64
	NetBuy24h       float64
	DevPercent      int
	Top10Percent    int
	SniperPercent   int
	InsiderPercent  int
	PhishingPercent int
	LastIndexedAt   time.Time
}

// TokenCreated is the payload published on the tokens.created subject when
// a new token row is inserted.
type TokenCreated struct {
	Address     string `json:"address"`
	DeployBlock uint64 `json:"deploy_block,omitempty"`
}
