package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/haven-markets/haven-indexer/internal/adapter"
	"github.com/haven-markets/haven-indexer/internal/block"
	"github.com/haven-markets/haven-indexer/internal/domain"
	"github.com/haven-markets/haven-indexer/internal/logger"
)

// rpcCallTimeout bounds every individual chain RPC call so that one hung
// token cannot stall the per-block loop. A timed-out range leaves the
// caller's watermark unadvanced and is retried next cycle.
const rpcCallTimeout = 30 * time.Second

// Reader is the chain-read surface the indexers depend on. Ranged scans are
// transparently split into sub-ranges no larger than the configured max
// span, which the upstream RPC enforces as a hard limit per query.
type Reader interface {
	// LatestBlock returns the current head block number
	LatestBlock(ctx context.Context) (uint64, error)

	// SubscribeNewHeads subscribes to new-block notifications
	SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)

	// FilterTransfers returns timestamped ERC20 transfers of one token in a range
	FilterTransfers(ctx context.Context, tokenAddress string, fromBlock, toBlock uint64) ([]domain.TransferEvent, error)

	// FilterCurveTrades returns bonding-curve Buy/Sell events for one token in a range
	FilterCurveTrades(ctx context.Context, curveAddress string, fromBlock, toBlock uint64) ([]domain.RawTradeEvent, error)

	// FilterPairSwaps returns DEX pair Swap events for one pair in a range
	FilterPairSwaps(ctx context.Context, pairAddress string, fromBlock, toBlock uint64) ([]domain.RawTradeEvent, error)

	// FilterFeeCollections returns creator-fee claims emitted by a curve in a range
	FilterFeeCollections(ctx context.Context, curveAddress string, fromBlock, toBlock uint64) ([]domain.CreatorFeeCollection, error)

	// FindGraduation returns the curve's graduation event in a range, or nil
	FindGraduation(ctx context.Context, curveAddress string, fromBlock, toBlock uint64) (*GraduationEvent, error)

	// TotalSupply reads totalSupply() from a token contract
	TotalSupply(ctx context.Context, tokenAddress string) (*big.Int, error)

	// Creator reads creator() from a curve contract. Returns
	// domain.ErrMethodNotSupported for contracts without the accessor.
	Creator(ctx context.Context, curveAddress string) (string, error)

	// PairTokens reads token0()/token1() from a pair, cached per pair
	PairTokens(ctx context.Context, pairAddress string) (token0, token1 string, err error)

	// PairReserves reads getReserves() from a pair
	PairReserves(ctx context.Context, pairAddress string) (reserve0, reserve1 *big.Int, err error)

	// Close closes the underlying connection
	Close()
}

// Config holds the chain reader configuration
type Config struct {
	// MaxBlockSpan is the hard per-query block span the RPC enforces
	MaxBlockSpan uint64
}

type reader struct {
	client adapter.EthClient
	blocks block.BlockProvider
	config Config

	pairs *pairCache
}

// NewReader creates a chain reader on top of a raw eth client and a block
// provider for timestamp stamping.
func NewReader(client adapter.EthClient, blocks block.BlockProvider, cfg Config) Reader {
	if cfg.MaxBlockSpan == 0 {
		cfg.MaxBlockSpan = 5000
	}
	return &reader{
		client: client,
		blocks: blocks,
		config: cfg,
		pairs:  newPairCache(),
	}
}

func (r *reader) LatestBlock(ctx context.Context) (uint64, error) {
	return r.blocks.GetLatestBlock(ctx)
}

func (r *reader) SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return r.client.SubscribeNewHead(ctx, ch)
}

// chunkedFilterLogs splits [fromBlock, toBlock] into sub-ranges of at most
// MaxBlockSpan blocks. On a "too many results" style error the chunk is
// halved and retried, matching provider behavior for busy ranges.
func (r *reader) chunkedFilterLogs(ctx context.Context, query ethereum.FilterQuery, fromBlock, toBlock uint64) ([]types.Log, error) {
	var allLogs []types.Log

	span := r.config.MaxBlockSpan
	current := fromBlock
	for current <= toBlock {
		end := current + span - 1
		if end > toBlock {
			end = toBlock
		}

		chunkQuery := query
		chunkQuery.FromBlock = new(big.Int).SetUint64(current)
		chunkQuery.ToBlock = new(big.Int).SetUint64(end)

		callCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
		logs, err := r.client.FilterLogs(callCtx, chunkQuery)
		cancel()
		if err != nil {
			if isTooManyResultsError(err) && span > 1 {
				span = span / 2
				logger.Warn("Too many results, reducing block span",
					zap.Uint64("new_span", span),
					zap.Uint64("from_block", current),
					zap.Uint64("to_block", end))
				continue
			}
			return nil, fmt.Errorf("failed to get logs for range %d-%d: %w", current, end, err)
		}

		allLogs = append(allLogs, logs...)
		current = end + 1
	}

	return allLogs, nil
}

// isTooManyResultsError checks if the error is a result-size complaint from
// the RPC rather than a transport failure.
func isTooManyResultsError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "query returned more than 10000 results") ||
		strings.Contains(errStr, "query timeout exceeded") ||
		strings.Contains(errStr, "too many results") ||
		strings.Contains(errStr, "exceeded maximum")
}

// stamp resolves a log's block timestamp through the bounded cache.
func (r *reader) stamp(ctx context.Context, blockNumber uint64) (time.Time, error) {
	callCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()
	return r.blocks.GetBlockTimestamp(callCtx, blockNumber)
}

func (r *reader) FilterTransfers(ctx context.Context, tokenAddress string, fromBlock, toBlock uint64) ([]domain.TransferEvent, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(tokenAddress)},
		Topics:    [][]common.Hash{{transferEventSignature}},
	}

	logs, err := r.chunkedFilterLogs(ctx, query, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to filter transfers for %s: %w", tokenAddress, err)
	}

	events := make([]domain.TransferEvent, 0, len(logs))
	for _, vLog := range logs {
		event, err := parseTransferLog(vLog)
		if err != nil {
			logger.WarnCtx(ctx, "Failed to parse transfer log", zap.Error(err))
			continue
		}
		if event == nil {
			continue
		}

		ts, err := r.stamp(ctx, vLog.BlockNumber)
		if err != nil {
			return nil, err
		}
		event.Timestamp = ts
		events = append(events, *event)
	}

	return events, nil
}

func (r *reader) FilterCurveTrades(ctx context.Context, curveAddress string, fromBlock, toBlock uint64) ([]domain.RawTradeEvent, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(curveAddress)},
		Topics:    [][]common.Hash{{curveBuyEventSignature, curveSellEventSignature}},
	}

	logs, err := r.chunkedFilterLogs(ctx, query, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to filter curve trades for %s: %w", curveAddress, err)
	}

	return r.parseTradeLogs(ctx, logs, parseCurveTradeLog)
}

func (r *reader) FilterPairSwaps(ctx context.Context, pairAddress string, fromBlock, toBlock uint64) ([]domain.RawTradeEvent, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(pairAddress)},
		Topics:    [][]common.Hash{{pairSwapEventSignature}},
	}

	logs, err := r.chunkedFilterLogs(ctx, query, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to filter pair swaps for %s: %w", pairAddress, err)
	}

	return r.parseTradeLogs(ctx, logs, parsePairSwapLog)
}

func (r *reader) parseTradeLogs(ctx context.Context, logs []types.Log, parse func(types.Log) (domain.RawTradeEvent, error)) ([]domain.RawTradeEvent, error) {
	events := make([]domain.RawTradeEvent, 0, len(logs))
	for _, vLog := range logs {
		event, err := parse(vLog)
		if err != nil {
			logger.WarnCtx(ctx, "Failed to parse trade log", zap.Error(err))
			continue
		}

		ts, err := r.stamp(ctx, vLog.BlockNumber)
		if err != nil {
			return nil, err
		}
		events = append(events, withTimestamp(event, ts))
	}
	return events, nil
}

// withTimestamp returns a copy of the trade event with its timestamp set.
func withTimestamp(event domain.RawTradeEvent, ts time.Time) domain.RawTradeEvent {
	switch e := event.(type) {
	case domain.CurveBuyEvent:
		e.Timestamp = ts
		return e
	case domain.CurveSellEvent:
		e.Timestamp = ts
		return e
	case domain.PairSwapEvent:
		e.Timestamp = ts
		return e
	default:
		return event
	}
}

func (r *reader) FilterFeeCollections(ctx context.Context, curveAddress string, fromBlock, toBlock uint64) ([]domain.CreatorFeeCollection, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(curveAddress)},
		Topics:    [][]common.Hash{{feeCollectedEventSignature}},
	}

	logs, err := r.chunkedFilterLogs(ctx, query, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to filter fee collections for %s: %w", curveAddress, err)
	}

	events := make([]domain.CreatorFeeCollection, 0, len(logs))
	for _, vLog := range logs {
		event, err := parseFeeCollectedLog(vLog)
		if err != nil {
			logger.WarnCtx(ctx, "Failed to parse fee collection log", zap.Error(err))
			continue
		}

		ts, err := r.stamp(ctx, vLog.BlockNumber)
		if err != nil {
			return nil, err
		}
		event.Timestamp = ts
		events = append(events, *event)
	}

	return events, nil
}

func (r *reader) FindGraduation(ctx context.Context, curveAddress string, fromBlock, toBlock uint64) (*GraduationEvent, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(curveAddress)},
		Topics:    [][]common.Hash{{graduatedEventSignature}},
	}

	logs, err := r.chunkedFilterLogs(ctx, query, fromBlock, toBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to filter graduation events for %s: %w", curveAddress, err)
	}
	if len(logs) == 0 {
		return nil, nil
	}

	// Graduation happens at most once per curve
	event, err := parseGraduatedLog(logs[0])
	if err != nil {
		return nil, err
	}

	ts, err := r.stamp(ctx, event.BlockNumber)
	if err != nil {
		return nil, err
	}
	event.Timestamp = ts
	return event, nil
}

func (r *reader) Close() {
	r.client.Close()
}
