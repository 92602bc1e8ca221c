package schema

import (
	"time"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// TokenAggregate represents the token_aggregates table - the per-token metric
// block the read API serves. Each reconciliation pass overwrites the row
// wholesale; nothing here is incrementally updated.
type TokenAggregate struct {
	// TokenAddress is the token contract (lowercased), the primary key
	TokenAddress string `gorm:"column:token_address;primaryKey;type:text"`
	// HoldersCount is the number of positive-balance wallets after exclusions
	HoldersCount int `gorm:"column:holders_count;not null;default:0"`
	// Txns24h is buys plus sells over the trailing 24 hours
	Txns24h int `gorm:"column:txns_24h;not null;default:0"`
	// PriceUSD is the latest observed trade price
	PriceUSD float64 `gorm:"column:price_usd;not null;default:0"`
	// MarketCapUSD is price times total supply
	MarketCapUSD float64 `gorm:"column:market_cap_usd;not null;default:0"`
	// LiquidityUSD is both pair reserves valued in USD, zero pre-graduation
	LiquidityUSD float64 `gorm:"column:liquidity_usd;not null;default:0"`
	// Volume24hUSD is total trade volume over the trailing 24 hours
	Volume24hUSD float64 `gorm:"column:volume_24h_usd;not null;default:0"`
	// PriceChange5m through PriceChange24h are percentage moves against snapshots
	PriceChange5m  float64 `gorm:"column:price_change_5m;not null;default:0"`
	PriceChange1h  float64 `gorm:"column:price_change_1h;not null;default:0"`
	PriceChange6h  float64 `gorm:"column:price_change_6h;not null;default:0"`
	PriceChange24h float64 `gorm:"column:price_change_24h;not null;default:0"`
	// Buys24h and Sells24h split Txns24h by direction
	Buys24h  int `gorm:"column:buys_24h;not null;default:0"`
	Sells24h int `gorm:"column:sells_24h;not null;default:0"`
	// BuyVolume24h, SellVolume24h and NetBuy24h split Volume24hUSD by direction
	BuyVolume24h  float64 `gorm:"column:buy_volume_24h;not null;default:0"`
	SellVolume24h float64 `gorm:"column:sell_volume_24h;not null;default:0"`
	NetBuy24h     float64 `gorm:"column:net_buy_24h;not null;default:0"`
	// DevPercent through PhishingPercent are whole-percent supply shares
	DevPercent      int `gorm:"column:dev_percent;not null;default:0"`
	Top10Percent    int `gorm:"column:top10_percent;not null;default:0"`
	SniperPercent   int `gorm:"column:sniper_percent;not null;default:0"`
	InsiderPercent  int `gorm:"column:insider_percent;not null;default:0"`
	PhishingPercent int `gorm:"column:phishing_percent;not null;default:0"`
	// LastIndexedAt is when the reconciliation pass that wrote this row ran
	LastIndexedAt time.Time `gorm:"column:last_indexed_at;not null;type:timestamptz"`
}

// TableName specifies the table name for the TokenAggregate model
func (TokenAggregate) TableName() string {
	return "token_aggregates"
}

// ToDomain converts the row into the domain representation.
func (a *TokenAggregate) ToDomain() domain.TokenAggregates {
	return domain.TokenAggregates{
		TokenAddress:    a.TokenAddress,
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

// TokenAggregateFromDomain builds a row from the domain representation.
func TokenAggregateFromDomain(a domain.TokenAggregates) TokenAggregate {
	return TokenAggregate{
		TokenAddress:    domain.NormalizeAddress(a.TokenAddress),
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
