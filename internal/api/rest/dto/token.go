package dto

import (
	"time"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// TokenResponse is the full per-token read model: contract facts plus the
// aggregate metric block the indexer maintains.
type TokenResponse struct {
	Address             string     `json:"address"`
	BondingCurveAddress string     `json:"bonding_curve_address,omitempty"`
	PairAddress         string     `json:"pair_address,omitempty"`
	CreatorAddress      string     `json:"creator_address,omitempty"`
	TotalSupply         string     `json:"total_supply"`
	Graduated           bool       `json:"graduated"`
	GraduatedAt         *time.Time `json:"graduated_at,omitempty"`
	DeployBlock         uint64     `json:"deploy_block,omitempty"`

	Aggregates *TokenAggregatesResponse `json:"aggregates,omitempty"`
}

// TokenAggregatesResponse carries the cached metric block. A zero
// LastIndexedAt means the metrics were recomputed on demand from raw ledger
// rows because no fresh aggregate row existed.
type TokenAggregatesResponse struct {
	HoldersCount    int       `json:"holders_count"`
	Txns24h         int       `json:"txns_24h"`
	PriceUSD        float64   `json:"price_usd"`
	MarketCapUSD    float64   `json:"market_cap_usd"`
	LiquidityUSD    float64   `json:"liquidity_usd"`
	Volume24hUSD    float64   `json:"volume_24h_usd"`
	PriceChange5m   float64   `json:"price_change_5m"`
	PriceChange1h   float64   `json:"price_change_1h"`
	PriceChange6h   float64   `json:"price_change_6h"`
	PriceChange24h  float64   `json:"price_change_24h"`
	Buys24h         int       `json:"buys_24h"`
	Sells24h        int       `json:"sells_24h"`
	BuyVolume24h    float64   `json:"buy_volume_24h"`
	SellVolume24h   float64   `json:"sell_volume_24h"`
	NetBuy24h       float64   `json:"net_buy_24h"`
	DevPercent      int       `json:"dev_percent"`
	Top10Percent    int       `json:"top10_percent"`
	SniperPercent   int       `json:"sniper_percent"`
	InsiderPercent  int       `json:"insider_percent"`
	PhishingPercent int       `json:"phishing_percent"`
	LastIndexedAt   time.Time `json:"last_indexed_at"`
}

// TokenListItem is one row of the token list, ordered by market cap.
type TokenListItem struct {
	Address    string                   `json:"address"`
	Aggregates *TokenAggregatesResponse `json:"aggregates"`
}

// TokenListResponse is the paginated token list.
type TokenListResponse struct {
	Tokens     []TokenListItem `json:"tokens"`
	Total      int             `json:"total"`
	NextOffset *int            `json:"next_offset,omitempty"`
}

// HolderResponse is one holder row with its global risk flags, when any.
type HolderResponse struct {
	HolderAddress string               `json:"holder_address"`
	Balance       string               `json:"balance"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Flags         *WalletFlagsResponse `json:"flags,omitempty"`
}

// HolderListResponse is the paginated holder list for one token.
type HolderListResponse struct {
	TokenAddress string           `json:"token_address"`
	Holders      []HolderResponse `json:"holders"`
	Total        int              `json:"total"`
	NextOffset   *int             `json:"next_offset,omitempty"`
}

// SwapResponse is one normalized trade.
type SwapResponse struct {
	TokenAddress  string    `json:"token_address"`
	PairAddress   string    `json:"pair_address,omitempty"`
	Trader        string    `json:"trader"`
	IsBuy         bool      `json:"is_buy"`
	TokenAmount   string    `json:"token_amount"`
	CounterAmount string    `json:"counter_amount"`
	PriceUSD      float64   `json:"price_usd"`
	TxHash        string    `json:"tx_hash"`
	BlockNumber   uint64    `json:"block_number"`
	LogIndex      uint      `json:"log_index"`
	Timestamp     time.Time `json:"timestamp"`
}

// SwapListResponse is the recent-trade list for one token, newest first.
type SwapListResponse struct {
	TokenAddress string         `json:"token_address"`
	Swaps        []SwapResponse `json:"swaps"`
}

// FeeCollectionResponse is one creator-fee claim.
type FeeCollectionResponse struct {
	TokenAddress   string    `json:"token_address"`
	CreatorAddress string    `json:"creator_address,omitempty"`
	AmountWei      string    `json:"amount_wei"`
	AmountUSD      float64   `json:"amount_usd"`
	TxHash         string    `json:"tx_hash"`
	BlockNumber    uint64    `json:"block_number"`
	Timestamp      time.Time `json:"timestamp"`
}

// FeeCollectionListResponse lists a token's creator-fee claims.
type FeeCollectionListResponse struct {
	TokenAddress string                  `json:"token_address"`
	Collections  []FeeCollectionResponse `json:"collections"`
	TotalUSD     float64                 `json:"total_usd"`
}

// WalletFlagsResponse is the global risk register entry for one wallet.
type WalletFlagsResponse struct {
	WalletAddress      string    `json:"wallet_address"`
	IsPhishing         bool      `json:"is_phishing"`
	IsSniper           bool      `json:"is_sniper"`
	IsInsider          bool      `json:"is_insider"`
	SniperScore        int       `json:"sniper_score"`
	InsiderConnections int       `json:"insider_connections"`
	PhishingReports    int       `json:"phishing_reports"`
	Notes              string    `json:"notes,omitempty"`
	FirstFlaggedAt     time.Time `json:"first_flagged_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// MapTokenToDTO maps a domain token and its aggregates to the response shape
func MapTokenToDTO(token *domain.Token, aggregates *domain.TokenAggregates) *TokenResponse {
	resp := &TokenResponse{
		Address:             token.Address,
		BondingCurveAddress: token.BondingCurveAddress,
		PairAddress:         token.PairAddress,
		CreatorAddress:      token.CreatorAddress,
		Graduated:           token.Graduated,
		GraduatedAt:         token.GraduatedAt,
		DeployBlock:         token.DeployBlock,
	}
	if token.TotalSupply != nil {
		resp.TotalSupply = token.TotalSupply.String()
	} else {
		resp.TotalSupply = "0"
	}
	if aggregates != nil {
		resp.Aggregates = MapAggregatesToDTO(aggregates)
	}
	return resp
}

// MapAggregatesToDTO maps a domain aggregate block to the response shape
func MapAggregatesToDTO(a *domain.TokenAggregates) *TokenAggregatesResponse {
	return &TokenAggregatesResponse{
		HoldersCount:    a.HoldersCount,
		Txns24h:         a.Txns24h,
		PriceUSD:        a.PriceUSD,
		MarketCapUSD:    a.MarketCapUSD,
		LiquidityUSD:    a.LiquidityUSD,
		Volume24hUSD:    a.Volume24hUSD,
		PriceChange5m:   a.PriceChange5m,
		PriceChange1h:   a.PriceChange1h,
		PriceChange6h:   a.PriceChange6h,
		PriceChange24h:  a.PriceChange24h,
		Buys24h:         a.Buys24h,
		Sells24h:        a.Sells24h,
		BuyVolume24h:    a.BuyVolume24h,
		SellVolume24h:   a.SellVolume24h,
		NetBuy24h:       a.NetBuy24h,
		DevPercent:      a.DevPercent,
		Top10Percent:    a.Top10Percent,
		SniperPercent:   a.SniperPercent,
		InsiderPercent:  a.InsiderPercent,
		PhishingPercent: a.PhishingPercent,
		LastIndexedAt:   a.LastIndexedAt,
	}
}

// MapHolderToDTO maps one holder balance row, attaching flags when present
func MapHolderToDTO(h domain.HolderBalance, flags *domain.WalletFlags) HolderResponse {
	resp := HolderResponse{
		HolderAddress: h.HolderAddress,
		Balance:       h.Balance.String(),
		UpdatedAt:     h.UpdatedAt,
	}
	if flags != nil {
		resp.Flags = MapWalletFlagsToDTO(flags)
	}
	return resp
}

// MapSwapToDTO maps one normalized trade
func MapSwapToDTO(s domain.SwapRecord) SwapResponse {
	return SwapResponse{
		TokenAddress:  s.TokenAddress,
		PairAddress:   s.PairAddress,
		Trader:        s.Trader,
		IsBuy:         s.IsBuy,
		TokenAmount:   s.TokenAmount.String(),
		CounterAmount: s.CounterAmount.String(),
		PriceUSD:      s.PriceUSD,
		TxHash:        s.TxHash,
		BlockNumber:   s.BlockNumber,
		LogIndex:      s.LogIndex,
		Timestamp:     s.Timestamp,
	}
}

// MapFeeCollectionToDTO maps one creator-fee claim
func MapFeeCollectionToDTO(f domain.CreatorFeeCollection) FeeCollectionResponse {
	return FeeCollectionResponse{
		TokenAddress:   f.TokenAddress,
		CreatorAddress: f.CreatorAddress,
		AmountWei:      f.AmountWei.String(),
		AmountUSD:      f.AmountUSD,
		TxHash:         f.TxHash,
		BlockNumber:    f.BlockNumber,
		Timestamp:      f.Timestamp,
	}
}

// MapWalletFlagsToDTO maps one wallet flag row
func MapWalletFlagsToDTO(f *domain.WalletFlags) *WalletFlagsResponse {
	return &WalletFlagsResponse{
		WalletAddress:      f.WalletAddress,
		IsPhishing:         f.IsPhishing,
		IsSniper:           f.IsSniper,
		IsInsider:          f.IsInsider,
		SniperScore:        f.SniperScore,
		InsiderConnections: f.InsiderConnections,
		PhishingReports:    f.PhishingReports,
		Notes:              f.Notes,
		FirstFlaggedAt:     f.FirstFlaggedAt,
		UpdatedAt:          f.UpdatedAt,
	}
}
