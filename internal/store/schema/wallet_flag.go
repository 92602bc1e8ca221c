package schema

import (
	"time"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// WalletFlag represents the wallet_flags table - the global cross-token risk
// register. Boolean flags only ever move false to true during indexing.
type WalletFlag struct {
	// WalletAddress is the flagged wallet (lowercased), the primary key
	WalletAddress string `gorm:"column:wallet_address;primaryKey;type:text"`
	// IsPhishing is set when the wallet received tokens without ever buying
	IsPhishing bool `gorm:"column:is_phishing;not null;default:false"`
	// IsSniper is set when the wallet bought inside a launch window
	IsSniper bool `gorm:"column:is_sniper;not null;default:false"`
	// IsInsider is set when the wallet holds multiple tokens by the same creator
	IsInsider bool `gorm:"column:is_insider;not null;default:false"`
	// SniperScore counts launches the wallet has sniped
	SniperScore int `gorm:"column:sniper_score;not null;default:0"`
	// InsiderConnections is the largest number of same-creator tokens seen held at once
	InsiderConnections int `gorm:"column:insider_connections;not null;default:0"`
	// PhishingReports counts tokens on which the wallet looked like a phishing recipient
	PhishingReports int `gorm:"column:phishing_reports;not null;default:0"`
	// Notes is free-form operator commentary, never written by the indexer
	Notes string `gorm:"column:notes;not null;default:'';type:text"`
	// FirstFlaggedAt is when any flag was first set
	FirstFlaggedAt time.Time `gorm:"column:first_flagged_at;not null;type:timestamptz"`
	// UpdatedAt is the timestamp when this row was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the WalletFlag model
func (WalletFlag) TableName() string {
	return "wallet_flags"
}

// ToDomain converts the row into the domain representation.
func (w *WalletFlag) ToDomain() domain.WalletFlags {
	return domain.WalletFlags{
		WalletAddress:      w.WalletAddress,
		IsPhishing:         w.IsPhishing,
		IsSniper:           w.IsSniper,
		IsInsider:          w.IsInsider,
		SniperScore:        w.SniperScore,
		InsiderConnections: w.InsiderConnections,
		PhishingReports:    w.PhishingReports,
		Notes:              w.Notes,
		FirstFlaggedAt:     w.FirstFlaggedAt,
		UpdatedAt:          w.UpdatedAt,
	}
}

// WalletFlagFromDomain builds a row from the domain representation.
func WalletFlagFromDomain(f domain.WalletFlags) WalletFlag {
	return WalletFlag{
		WalletAddress:      domain.NormalizeAddress(f.WalletAddress),
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
