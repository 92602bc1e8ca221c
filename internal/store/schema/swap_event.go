package schema

import (
	"time"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// SwapEvent represents the swap_events table - normalized trades from both
// the bonding curve and the DEX pair
type SwapEvent struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// TxHash is the transaction hash (lowercased)
	TxHash string `gorm:"column:tx_hash;not null;type:text;uniqueIndex:idx_swap_events_natural,priority:1"`
	// LogIndex is the log position of the source event
	LogIndex uint `gorm:"column:log_index;not null;uniqueIndex:idx_swap_events_natural,priority:2"`
	// TokenAddress is the traded token
	TokenAddress string `gorm:"column:token_address;not null;type:text;index:idx_swap_events_token_time,priority:1"`
	// PairAddress is the DEX pair for post-graduation trades, empty for curve trades
	PairAddress string `gorm:"column:pair_address;not null;default:'';type:text"`
	// Trader is the wallet on the token side of the trade
	Trader string `gorm:"column:trader;not null;type:text"`
	// IsBuy is true when the trader acquired tokens
	IsBuy bool `gorm:"column:is_buy;not null"`
	// TokenAmount is the token leg (stored as string to support up to 78 digits)
	TokenAmount string `gorm:"column:token_amount;not null;type:numeric(78,0)"`
	// CounterAmount is the BNB leg in wei
	CounterAmount string `gorm:"column:counter_amount;not null;type:numeric(78,0)"`
	// PriceUSD is the USD price per whole token implied by the two legs
	PriceUSD float64 `gorm:"column:price_usd;not null"`
	// BlockNumber is the block containing the transaction
	BlockNumber uint64 `gorm:"column:block_number;not null"`
	// Timestamp is the block timestamp
	Timestamp time.Time `gorm:"column:timestamp;not null;type:timestamptz;index:idx_swap_events_token_time,priority:2"`
	// CreatedAt is the timestamp when this row was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the SwapEvent model
func (SwapEvent) TableName() string {
	return "swap_events"
}

// ToDomain converts the row into the domain representation.
func (e *SwapEvent) ToDomain() domain.SwapRecord {
	return domain.SwapRecord{
		TokenAddress:  e.TokenAddress,
		PairAddress:   e.PairAddress,
		Trader:        e.Trader,
		IsBuy:         e.IsBuy,
		TokenAmount:   ParseBig(e.TokenAmount),
		CounterAmount: ParseBig(e.CounterAmount),
		PriceUSD:      e.PriceUSD,
		TxHash:        e.TxHash,
		BlockNumber:   e.BlockNumber,
		LogIndex:      e.LogIndex,
		Timestamp:     e.Timestamp,
	}
}

// SwapEventFromDomain builds a row from the domain representation.
func SwapEventFromDomain(s domain.SwapRecord) SwapEvent {
	return SwapEvent{
		TxHash:        domain.NormalizeAddress(s.TxHash),
		LogIndex:      s.LogIndex,
		TokenAddress:  domain.NormalizeAddress(s.TokenAddress),
		PairAddress:   domain.NormalizeAddress(s.PairAddress),
		Trader:        domain.NormalizeAddress(s.Trader),
		IsBuy:         s.IsBuy,
		TokenAmount:   FormatBig(s.TokenAmount),
		CounterAmount: FormatBig(s.CounterAmount),
		PriceUSD:      s.PriceUSD,
		BlockNumber:   s.BlockNumber,
		Timestamp:     s.Timestamp,
	}
}
