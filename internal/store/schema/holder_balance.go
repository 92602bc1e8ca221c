package schema

import (
	"time"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// HolderBalance represents the holder_balances table - materialized current
// balances, fully recomputable from transfer_events
type HolderBalance struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// TokenAddress is the token contract
	TokenAddress string `gorm:"column:token_address;not null;type:text;uniqueIndex:idx_holder_balances_token_holder,priority:1"`
	// HolderAddress is the holding wallet
	HolderAddress string `gorm:"column:holder_address;not null;type:text;uniqueIndex:idx_holder_balances_token_holder,priority:2;index:idx_holder_balances_holder"`
	// Balance is the current balance (stored as string to support up to 78 digits)
	Balance string `gorm:"column:balance;not null;type:numeric(78,0)"`
	// UpdatedAt is the timestamp when this row was last recomputed
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the HolderBalance model
func (HolderBalance) TableName() string {
	return "holder_balances"
}

// ToDomain converts the row into the domain representation.
func (b *HolderBalance) ToDomain() domain.HolderBalance {
	return domain.HolderBalance{
		TokenAddress:  b.TokenAddress,
		HolderAddress: b.HolderAddress,
		Balance:       ParseBig(b.Balance),
		UpdatedAt:     b.UpdatedAt,
	}
}

// HolderBalanceFromDomain builds a row from the domain representation.
func HolderBalanceFromDomain(b domain.HolderBalance) HolderBalance {
	return HolderBalance{
		TokenAddress:  domain.NormalizeAddress(b.TokenAddress),
		HolderAddress: domain.NormalizeAddress(b.HolderAddress),
		Balance:       FormatBig(b.Balance),
		UpdatedAt:     b.UpdatedAt,
	}
}
