package schema

import (
	"time"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// CreatorFeeCollection represents the creator_fee_collections table -
// observed creator-fee claims
type CreatorFeeCollection struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// TxHash is the claiming transaction hash, unique per claim
	TxHash string `gorm:"column:tx_hash;not null;type:text;uniqueIndex:idx_creator_fee_collections_tx"`
	// TokenAddress is the token whose fees were claimed
	TokenAddress string `gorm:"column:token_address;not null;type:text;index:idx_creator_fee_collections_token"`
	// CreatorAddress is the claiming wallet
	CreatorAddress string `gorm:"column:creator_address;not null;type:text"`
	// AmountWei is the claimed amount in wei (stored as string to support up to 78 digits)
	AmountWei string `gorm:"column:amount_wei;not null;type:numeric(78,0)"`
	// AmountUSD is the claimed amount converted at the price observed at indexing time
	AmountUSD float64 `gorm:"column:amount_usd;not null"`
	// BlockNumber is the block containing the transaction
	BlockNumber uint64 `gorm:"column:block_number;not null"`
	// Timestamp is the block timestamp
	Timestamp time.Time `gorm:"column:timestamp;not null;type:timestamptz"`
	// CreatedAt is the timestamp when this row was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the CreatorFeeCollection model
func (CreatorFeeCollection) TableName() string {
	return "creator_fee_collections"
}

// ToDomain converts the row into the domain representation.
func (c *CreatorFeeCollection) ToDomain() domain.CreatorFeeCollection {
	return domain.CreatorFeeCollection{
		TokenAddress:   c.TokenAddress,
		CreatorAddress: c.CreatorAddress,
		AmountWei:      ParseBig(c.AmountWei),
		AmountUSD:      c.AmountUSD,
		TxHash:         c.TxHash,
		BlockNumber:    c.BlockNumber,
		Timestamp:      c.Timestamp,
	}
}

// CreatorFeeCollectionFromDomain builds a row from the domain representation.
func CreatorFeeCollectionFromDomain(c domain.CreatorFeeCollection) CreatorFeeCollection {
	return CreatorFeeCollection{
		TxHash:         domain.NormalizeAddress(c.TxHash),
		TokenAddress:   domain.NormalizeAddress(c.TokenAddress),
		CreatorAddress: domain.NormalizeAddress(c.CreatorAddress),
		AmountWei:      FormatBig(c.AmountWei),
		AmountUSD:      c.AmountUSD,
		BlockNumber:    c.BlockNumber,
		Timestamp:      c.Timestamp,
	}
}
