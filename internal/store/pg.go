package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/haven-markets/haven-indexer/internal/domain"
	"github.com/haven-markets/haven-indexer/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// It accesses the underlying *sql.DB and sets the pool configuration.
// If any of the pool settings are 0 or empty, reasonable defaults are used:
//   - MaxOpenConns: 20 (if 0)
//   - MaxIdleConns: 5 (if 0)
//   - ConnMaxLifetime: 5 minutes (if 0)
//   - ConnMaxIdleTime: 10 minutes (if 0)
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	// Set defaults if not provided
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// calculateSafeBatchSize computes the batch size for bulk inserts that stays
// under PostgreSQL's extended-protocol limit of 65535 parameters per query.
// Each record consumes one parameter per inserted field, and ON CONFLICT
// clauses plus GORM bookkeeping add batch-level overhead, so a fixed headroom
// is reserved from the total.
func calculateSafeBatchSize(totalRecords int, fieldsPerRecord int) int {
	const maxParams = 65535
	const totalHeadroom = 1000 // Total parameter headroom for batch-level overhead

	availableParams := maxParams - totalHeadroom
	safeBatchSize := max(availableParams/fieldsPerRecord, 1)

	if safeBatchSize > totalRecords {
		return totalRecords
	}

	return safeBatchSize
}

// CreateToken inserts a token row if it does not exist yet
func (s *pgStore) CreateToken(ctx context.Context, token *domain.Token) (bool, error) {
	row := schema.TokenFromDomain(token)

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create token: %w", res.Error)
	}

	return res.RowsAffected > 0, nil
}

// GetToken retrieves a token by contract address
func (s *pgStore) GetToken(ctx context.Context, address string) (*domain.Token, error) {
	var row schema.Token
	err := s.db.WithContext(ctx).Where("address = ?", domain.NormalizeAddress(address)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return row.ToDomain(), nil
}

// ListTokens retrieves all tracked tokens
func (s *pgStore) ListTokens(ctx context.Context) ([]*domain.Token, error) {
	var rows []schema.Token
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	tokens := make([]*domain.Token, len(rows))
	for i := range rows {
		tokens[i] = rows[i].ToDomain()
	}
	return tokens, nil
}

// UpdateToken overwrites a token row
func (s *pgStore) UpdateToken(ctx context.Context, token *domain.Token) error {
	row := schema.TokenFromDomain(token)
	err := s.db.WithContext(ctx).Model(&schema.Token{}).
		Where("address = ?", row.Address).
		Updates(map[string]interface{}{
			"bonding_curve_address": row.BondingCurveAddress,
			"pair_address":          row.PairAddress,
			"creator_address":       row.CreatorAddress,
			"total_supply":          row.TotalSupply,
			"graduated":             row.Graduated,
			"graduated_at":          row.GraduatedAt,
			"deploy_block":          row.DeployBlock,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	return nil
}

// SaveTransferEvents batch-inserts transfer logs, skipping duplicates on the
// (tx_hash, token_address, log_index) natural key
func (s *pgStore) SaveTransferEvents(ctx context.Context, events []domain.TransferEvent) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([]schema.TransferEvent, len(events))
	for i, e := range events {
		rows[i] = schema.TransferEventFromDomain(e)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}, {Name: "token_address"}, {Name: "log_index"}},
		DoNothing: true,
	}).CreateInBatches(rows, calculateSafeBatchSize(len(rows), 9)).Error
	if err != nil {
		return fmt.Errorf("failed to save transfer events: %w", err)
	}

	return nil
}

// GetTransferEvents retrieves all transfer logs for a token in chain order
func (s *pgStore) GetTransferEvents(ctx context.Context, tokenAddress string) ([]domain.TransferEvent, error) {
	var rows []schema.TransferEvent
	err := s.db.WithContext(ctx).
		Where("token_address = ?", domain.NormalizeAddress(tokenAddress)).
		Order("block_number ASC, log_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer events: %w", err)
	}

	events := make([]domain.TransferEvent, len(rows))
	for i := range rows {
		events[i] = rows[i].ToDomain()
	}
	return events, nil
}

// SaveSwapEvents batch-inserts normalized trades, skipping duplicates on the
// (tx_hash, log_index) natural key
func (s *pgStore) SaveSwapEvents(ctx context.Context, swaps []domain.SwapRecord) error {
	if len(swaps) == 0 {
		return nil
	}

	rows := make([]schema.SwapEvent, len(swaps))
	for i, sw := range swaps {
		rows[i] = schema.SwapEventFromDomain(sw)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}, {Name: "log_index"}},
		DoNothing: true,
	}).CreateInBatches(rows, calculateSafeBatchSize(len(rows), 12)).Error
	if err != nil {
		return fmt.Errorf("failed to save swap events: %w", err)
	}

	return nil
}

// GetSwapEvents retrieves all trades for a token in chain order
func (s *pgStore) GetSwapEvents(ctx context.Context, tokenAddress string) ([]domain.SwapRecord, error) {
	var rows []schema.SwapEvent
	err := s.db.WithContext(ctx).
		Where("token_address = ?", domain.NormalizeAddress(tokenAddress)).
		Order("block_number ASC, log_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get swap events: %w", err)
	}

	swaps := make([]domain.SwapRecord, len(rows))
	for i := range rows {
		swaps[i] = rows[i].ToDomain()
	}
	return swaps, nil
}

// GetSwapEventsSince retrieves trades for a token at or after the given time
func (s *pgStore) GetSwapEventsSince(ctx context.Context, tokenAddress string, since time.Time) ([]domain.SwapRecord, error) {
	var rows []schema.SwapEvent
	err := s.db.WithContext(ctx).
		Where("token_address = ? AND timestamp >= ?", domain.NormalizeAddress(tokenAddress), since).
		Order("block_number ASC, log_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get swap events since %s: %w", since, err)
	}

	swaps := make([]domain.SwapRecord, len(rows))
	for i := range rows {
		swaps[i] = rows[i].ToDomain()
	}
	return swaps, nil
}

// GetLatestSwap retrieves the most recent trade for a token
func (s *pgStore) GetLatestSwap(ctx context.Context, tokenAddress string) (*domain.SwapRecord, error) {
	var row schema.SwapEvent
	err := s.db.WithContext(ctx).
		Where("token_address = ?", domain.NormalizeAddress(tokenAddress)).
		Order("block_number DESC, log_index DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest swap: %w", err)
	}

	swap := row.ToDomain()
	return &swap, nil
}

// ReplaceHolderBalances swaps in a freshly folded balance set for a token.
// Balances are recomputed wholesale from the transfer log, so stale rows are
// dropped rather than reconciled.
func (s *pgStore) ReplaceHolderBalances(ctx context.Context, tokenAddress string, balances []domain.HolderBalance) error {
	addr := domain.NormalizeAddress(tokenAddress)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("token_address = ?", addr).Delete(&schema.HolderBalance{}).Error; err != nil {
			return fmt.Errorf("failed to clear holder balances: %w", err)
		}

		if len(balances) == 0 {
			return nil
		}

		rows := make([]schema.HolderBalance, len(balances))
		for i, b := range balances {
			rows[i] = schema.HolderBalanceFromDomain(b)
			rows[i].TokenAddress = addr
		}

		if err := tx.CreateInBatches(rows, calculateSafeBatchSize(len(rows), 4)).Error; err != nil {
			return fmt.Errorf("failed to insert holder balances: %w", err)
		}

		return nil
	})
}

// GetHolderBalances retrieves a token's balances sorted descending
func (s *pgStore) GetHolderBalances(ctx context.Context, tokenAddress string) ([]domain.HolderBalance, error) {
	var rows []schema.HolderBalance
	err := s.db.WithContext(ctx).
		Where("token_address = ?", domain.NormalizeAddress(tokenAddress)).
		Order("balance DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get holder balances: %w", err)
	}

	balances := make([]domain.HolderBalance, len(rows))
	for i := range rows {
		balances[i] = rows[i].ToDomain()
	}
	return balances, nil
}

// GetSiblingHoldings maps each wallet to how many other tokens by the given
// creator it currently holds
func (s *pgStore) GetSiblingHoldings(ctx context.Context, creatorAddress, excludeToken string) (map[string]int, error) {
	type holdingCount struct {
		HolderAddress string `gorm:"column:holder_address"`
		TokenCount    int    `gorm:"column:token_count"`
	}

	var counts []holdingCount
	err := s.db.WithContext(ctx).Raw(`
		SELECT hb.holder_address, COUNT(DISTINCT hb.token_address) AS token_count
		FROM holder_balances hb
		JOIN tokens t ON t.address = hb.token_address
		WHERE t.creator_address = ?
			AND hb.token_address <> ?
			AND hb.balance > 0
		GROUP BY hb.holder_address
	`, domain.NormalizeAddress(creatorAddress), domain.NormalizeAddress(excludeToken)).
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get sibling holdings: %w", err)
	}

	result := make(map[string]int, len(counts))
	for _, c := range counts {
		result[c.HolderAddress] = c.TokenCount
	}
	return result, nil
}

// SaveFeeCollections batch-inserts fee claims, skipping duplicates on tx_hash
func (s *pgStore) SaveFeeCollections(ctx context.Context, fees []domain.CreatorFeeCollection) error {
	if len(fees) == 0 {
		return nil
	}

	rows := make([]schema.CreatorFeeCollection, len(fees))
	for i, f := range fees {
		rows[i] = schema.CreatorFeeCollectionFromDomain(f)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}},
		DoNothing: true,
	}).CreateInBatches(rows, calculateSafeBatchSize(len(rows), 9)).Error
	if err != nil {
		return fmt.Errorf("failed to save fee collections: %w", err)
	}

	return nil
}

// GetFeeCollections retrieves fee claims for a token in chain order
func (s *pgStore) GetFeeCollections(ctx context.Context, tokenAddress string) ([]domain.CreatorFeeCollection, error) {
	var rows []schema.CreatorFeeCollection
	err := s.db.WithContext(ctx).
		Where("token_address = ?", domain.NormalizeAddress(tokenAddress)).
		Order("block_number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get fee collections: %w", err)
	}

	fees := make([]domain.CreatorFeeCollection, len(rows))
	for i := range rows {
		fees[i] = rows[i].ToDomain()
	}
	return fees, nil
}

// GetWalletFlags retrieves the current flag rows for the given wallets
func (s *pgStore) GetWalletFlags(ctx context.Context, wallets []string) (map[string]domain.WalletFlags, error) {
	result := make(map[string]domain.WalletFlags)
	if len(wallets) == 0 {
		return result, nil
	}

	normalized := make([]string, len(wallets))
	for i, w := range wallets {
		normalized[i] = domain.NormalizeAddress(w)
	}

	var rows []schema.WalletFlag
	err := s.db.WithContext(ctx).
		Where("wallet_address IN ?", normalized).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet flags: %w", err)
	}

	for i := range rows {
		result[rows[i].WalletAddress] = rows[i].ToDomain()
	}
	return result, nil
}

// UpsertWalletFlags merges flag rows into the global register. Notes and
// first_flagged_at belong to the first writer and are never overwritten.
func (s *pgStore) UpsertWalletFlags(ctx context.Context, flags []domain.WalletFlags) error {
	if len(flags) == 0 {
		return nil
	}

	rows := make([]schema.WalletFlag, len(flags))
	for i, f := range flags {
		rows[i] = schema.WalletFlagFromDomain(f)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet_address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_phishing", "is_sniper", "is_insider",
			"sniper_score", "insider_connections", "phishing_reports",
			"updated_at",
		}),
	}).CreateInBatches(rows, calculateSafeBatchSize(len(rows), 10)).Error
	if err != nil {
		return fmt.Errorf("failed to upsert wallet flags: %w", err)
	}

	return nil
}

// SavePriceSnapshot appends one price observation
func (s *pgStore) SavePriceSnapshot(ctx context.Context, snapshot domain.PriceSnapshot) error {
	row := schema.PriceSnapshotFromDomain(snapshot)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save price snapshot: %w", err)
	}
	return nil
}

// GetPriceAt retrieves the latest snapshot at or before the given time
func (s *pgStore) GetPriceAt(ctx context.Context, tokenAddress string, at time.Time) (float64, bool, error) {
	var row schema.PriceSnapshot
	err := s.db.WithContext(ctx).
		Where("token_address = ? AND timestamp <= ?", domain.NormalizeAddress(tokenAddress), at).
		Order("timestamp DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get price snapshot: %w", err)
	}

	return row.PriceUSD, true, nil
}

// UpsertTokenAggregates overwrites a token's metric block wholesale
func (s *pgStore) UpsertTokenAggregates(ctx context.Context, agg domain.TokenAggregates) error {
	row := schema.TokenAggregateFromDomain(agg)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_address"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert token aggregates: %w", err)
	}

	return nil
}

// GetTokenAggregates retrieves a token's metric block
func (s *pgStore) GetTokenAggregates(ctx context.Context, tokenAddress string) (*domain.TokenAggregates, error) {
	var row schema.TokenAggregate
	err := s.db.WithContext(ctx).
		Where("token_address = ?", domain.NormalizeAddress(tokenAddress)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token aggregates: %w", err)
	}

	agg := row.ToDomain()
	return &agg, nil
}

// ListTokenAggregates retrieves every token's metric block
func (s *pgStore) ListTokenAggregates(ctx context.Context) ([]domain.TokenAggregates, error) {
	var rows []schema.TokenAggregate
	err := s.db.WithContext(ctx).
		Order("market_cap_usd DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list token aggregates: %w", err)
	}

	aggs := make([]domain.TokenAggregates, len(rows))
	for i := range rows {
		aggs[i] = rows[i].ToDomain()
	}
	return aggs, nil
}
