package schema

import (
	"time"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// TransferEvent represents the transfer_events table - the append-only ERC-20 transfer log
type TransferEvent struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// TxHash is the transaction hash (lowercased)
	TxHash string `gorm:"column:tx_hash;not null;type:text;uniqueIndex:idx_transfer_events_natural,priority:1"`
	// TokenAddress is the emitting token contract
	TokenAddress string `gorm:"column:token_address;not null;type:text;uniqueIndex:idx_transfer_events_natural,priority:2;index:idx_transfer_events_token_block,priority:1"`
	// LogIndex is the log position within the transaction's block
	LogIndex uint `gorm:"column:log_index;not null;uniqueIndex:idx_transfer_events_natural,priority:3"`
	// FromAddress is the sender, the zero address for mints
	FromAddress string `gorm:"column:from_address;not null;type:text"`
	// ToAddress is the recipient, the zero address for burns
	ToAddress string `gorm:"column:to_address;not null;type:text"`
	// Amount is the transferred quantity (stored as string to support up to 78 digits)
	Amount string `gorm:"column:amount;not null;type:numeric(78,0)"`
	// BlockNumber is the block containing the transaction
	BlockNumber uint64 `gorm:"column:block_number;not null;index:idx_transfer_events_token_block,priority:2"`
	// Timestamp is the block timestamp
	Timestamp time.Time `gorm:"column:timestamp;not null;type:timestamptz"`
	// CreatedAt is the timestamp when this row was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the TransferEvent model
func (TransferEvent) TableName() string {
	return "transfer_events"
}

// ToDomain converts the row into the domain representation.
func (e *TransferEvent) ToDomain() domain.TransferEvent {
	return domain.TransferEvent{
		TokenAddress: e.TokenAddress,
		From:         e.FromAddress,
		To:           e.ToAddress,
		Amount:       ParseBig(e.Amount),
		TxHash:       e.TxHash,
		BlockNumber:  e.BlockNumber,
		LogIndex:     e.LogIndex,
		Timestamp:    e.Timestamp,
	}
}

// TransferEventFromDomain builds a row from the domain representation.
func TransferEventFromDomain(e domain.TransferEvent) TransferEvent {
	return TransferEvent{
		TxHash:       domain.NormalizeAddress(e.TxHash),
		TokenAddress: domain.NormalizeAddress(e.TokenAddress),
		LogIndex:     e.LogIndex,
		FromAddress:  domain.NormalizeAddress(e.From),
		ToAddress:    domain.NormalizeAddress(e.To),
		Amount:       FormatBig(e.Amount),
		BlockNumber:  e.BlockNumber,
		Timestamp:    e.Timestamp,
	}
}
