package schema

import (
	"time"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// PriceSnapshot represents the price_snapshots table - append-only price
// observations used for percentage-change lookups
type PriceSnapshot struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// TokenAddress is the observed token
	TokenAddress string `gorm:"column:token_address;not null;type:text;index:idx_price_snapshots_token_time,priority:1"`
	// PriceUSD is the USD price per whole token at observation time
	PriceUSD float64 `gorm:"column:price_usd;not null"`
	// Timestamp is when the price was observed
	Timestamp time.Time `gorm:"column:timestamp;not null;type:timestamptz;index:idx_price_snapshots_token_time,priority:2"`
}

// TableName specifies the table name for the PriceSnapshot model
func (PriceSnapshot) TableName() string {
	return "price_snapshots"
}

// ToDomain converts the row into the domain representation.
func (p *PriceSnapshot) ToDomain() domain.PriceSnapshot {
	return domain.PriceSnapshot{
		TokenAddress: p.TokenAddress,
		PriceUSD:     p.PriceUSD,
		Timestamp:    p.Timestamp,
	}
}

// PriceSnapshotFromDomain builds a row from the domain representation.
func PriceSnapshotFromDomain(p domain.PriceSnapshot) PriceSnapshot {
	return PriceSnapshot{
		TokenAddress: domain.NormalizeAddress(p.TokenAddress),
		PriceUSD:     p.PriceUSD,
		Timestamp:    p.Timestamp,
	}
}
