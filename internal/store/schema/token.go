package schema

import (
	"time"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// Token represents the tokens table - the registry of tracked bonding-curve tokens
type Token struct {
	// Address is the token contract address (lowercased), the primary key
	Address string `gorm:"column:address;primaryKey;type:text"`
	// BondingCurveAddress is the curve contract when it differs from the token contract
	BondingCurveAddress string `gorm:"column:bonding_curve_address;not null;default:'';type:text"`
	// PairAddress is the DEX pair created at graduation, empty before that
	PairAddress string `gorm:"column:pair_address;not null;default:'';type:text"`
	// CreatorAddress is the deployer wallet
	CreatorAddress string `gorm:"column:creator_address;not null;default:'';type:text"`
	// TotalSupply is the on-chain total supply (stored as string to support up to 78 digits)
	TotalSupply string `gorm:"column:total_supply;not null;default:'0';type:numeric(78,0)"`
	// Graduated is true once the token has moved from the curve to the DEX
	Graduated bool `gorm:"column:graduated;not null;default:false"`
	// GraduatedAt is the block timestamp of the graduation event
	GraduatedAt *time.Time `gorm:"column:graduated_at;type:timestamptz"`
	// DeployBlock is the block at which the token contract was deployed
	DeployBlock uint64 `gorm:"column:deploy_block;not null;default:0"`
	// CreatedAt is the timestamp when this row was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this row was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Token model
func (Token) TableName() string {
	return "tokens"
}

// ToDomain converts the row into the domain representation.
func (t *Token) ToDomain() *domain.Token {
	return &domain.Token{
		Address:             t.Address,
		BondingCurveAddress: t.BondingCurveAddress,
		PairAddress:         t.PairAddress,
		CreatorAddress:      t.CreatorAddress,
		TotalSupply:         ParseBig(t.TotalSupply),
		Graduated:           t.Graduated,
		GraduatedAt:         t.GraduatedAt,
		DeployBlock:         t.DeployBlock,
	}
}

// TokenFromDomain builds a row from the domain representation.
func TokenFromDomain(t *domain.Token) Token {
	return Token{
		Address:             domain.NormalizeAddress(t.Address),
		BondingCurveAddress: domain.NormalizeAddress(t.BondingCurveAddress),
		PairAddress:         domain.NormalizeAddress(t.PairAddress),
		CreatorAddress:      domain.NormalizeAddress(t.CreatorAddress),
		TotalSupply:         FormatBig(t.TotalSupply),
		Graduated:           t.Graduated,
		GraduatedAt:         t.GraduatedAt,
		DeployBlock:         t.DeployBlock,
	}
}
