package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/haven-markets/haven-indexer/internal/store/schema"
)

// CursorStore defines the interface for storing and retrieving block cursors.
// The realtime indexer keeps two independent watermarks per chain: the head
// cursor for the transfer/swap pipeline and the fee cursor for the sweep job.
type CursorStore interface {
	// GetBlockCursor retrieves the last processed block number for a chain
	GetBlockCursor(ctx context.Context, chain string) (uint64, error)
	// SetBlockCursor stores the last processed block number for a chain
	SetBlockCursor(ctx context.Context, chain string, blockNumber uint64) error
	// GetFeeCursor retrieves the fee-sweep watermark for a chain
	GetFeeCursor(ctx context.Context, chain string) (uint64, error)
	// SetFeeCursor stores the fee-sweep watermark for a chain
	SetFeeCursor(ctx context.Context, chain string, blockNumber uint64) error
}

type cursorStore struct {
	db *gorm.DB
}

// NewCursorStore creates a new cursor store
func NewCursorStore(db *gorm.DB) CursorStore {
	return &cursorStore{db: db}
}

func (s *cursorStore) getCursor(ctx context.Context, key string) (uint64, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil // Return 0 if no cursor exists
		}
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}

	blockNumber, err := strconv.ParseUint(kv.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse cursor: %w", err)
	}

	return blockNumber, nil
}

func (s *cursorStore) setCursor(ctx context.Context, key string, blockNumber uint64) error {
	kv := schema.KeyValueStore{
		Key:   key,
		Value: strconv.FormatUint(blockNumber, 10),
	}

	err := s.db.WithContext(ctx).Save(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to set cursor: %w", err)
	}

	return nil
}

// GetBlockCursor retrieves the last processed block number for a chain
func (s *cursorStore) GetBlockCursor(ctx context.Context, chain string) (uint64, error) {
	return s.getCursor(ctx, fmt.Sprintf("block_cursor:%s", chain))
}

// SetBlockCursor stores the last processed block number for a chain
func (s *cursorStore) SetBlockCursor(ctx context.Context, chain string, blockNumber uint64) error {
	return s.setCursor(ctx, fmt.Sprintf("block_cursor:%s", chain), blockNumber)
}

// GetFeeCursor retrieves the fee-sweep watermark for a chain
func (s *cursorStore) GetFeeCursor(ctx context.Context, chain string) (uint64, error) {
	return s.getCursor(ctx, fmt.Sprintf("fee_cursor:%s", chain))
}

// SetFeeCursor stores the fee-sweep watermark for a chain
func (s *cursorStore) SetFeeCursor(ctx context.Context, chain string, blockNumber uint64) error {
	return s.setCursor(ctx, fmt.Sprintf("fee_cursor:%s", chain), blockNumber)
}
