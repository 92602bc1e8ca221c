package chain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// Event signatures
var (
	// ERC20 Transfer(address indexed from, address indexed to, uint256 value)
	transferEventSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	// Bonding curve Buy(address indexed user, uint256 assetIn, uint256 tokensOut, uint256 fee)
	curveBuyEventSignature = crypto.Keccak256Hash([]byte("Buy(address,uint256,uint256,uint256)"))

	// Bonding curve Sell(address indexed user, uint256 tokensIn, uint256 assetOut, uint256 fee)
	curveSellEventSignature = crypto.Keccak256Hash([]byte("Sell(address,uint256,uint256,uint256)"))

	// DEX pair Swap(address indexed sender, uint256 amount0In, uint256 amount1In,
	//               uint256 amount0Out, uint256 amount1Out, address indexed to)
	pairSwapEventSignature = crypto.Keccak256Hash([]byte("Swap(address,uint256,uint256,uint256,uint256,address)"))

	// Bonding curve CreatorFeeCollected(address indexed creator, uint256 amount)
	feeCollectedEventSignature = crypto.Keccak256Hash([]byte("CreatorFeeCollected(address,uint256)"))

	// Bonding curve Graduated(address indexed token, address pair)
	graduatedEventSignature = crypto.Keccak256Hash([]byte("Graduated(address,address)"))
)

// word extracts the i-th 32-byte word of event data as a big.Int.
func word(data []byte, i int) *big.Int {
	return new(big.Int).SetBytes(data[i*32 : (i+1)*32])
}

// parseTransferLog parses an ERC20 Transfer log. Returns nil for logs that
// are not ERC20-shaped (ERC721 shares the signature with 4 topics).
func parseTransferLog(vLog types.Log) (*domain.TransferEvent, error) {
	if len(vLog.Topics) != 3 {
		// ERC721 Transfer or malformed; not a fungible transfer
		return nil, nil
	}
	if len(vLog.Data) < 32 {
		return nil, fmt.Errorf("invalid Transfer event: insufficient data in tx %s", vLog.TxHash.Hex())
	}

	return &domain.TransferEvent{
		TokenAddress: domain.NormalizeAddress(vLog.Address.Hex()),
		From:         domain.NormalizeAddress(common.BytesToAddress(vLog.Topics[1].Bytes()).Hex()),
		To:           domain.NormalizeAddress(common.BytesToAddress(vLog.Topics[2].Bytes()).Hex()),
		Amount:       word(vLog.Data, 0),
		TxHash:       domain.NormalizeAddress(vLog.TxHash.Hex()),
		BlockNumber:  vLog.BlockNumber,
		LogIndex:     vLog.Index,
	}, nil
}

// parseCurveTradeLog parses a bonding-curve Buy or Sell log into the tagged
// trade union.
func parseCurveTradeLog(vLog types.Log) (domain.RawTradeEvent, error) {
	if len(vLog.Topics) != 2 {
		return nil, fmt.Errorf("invalid curve trade event: expected 2 topics, got %d", len(vLog.Topics))
	}
	if len(vLog.Data) < 96 {
		return nil, fmt.Errorf("invalid curve trade event: insufficient data in tx %s", vLog.TxHash.Hex())
	}

	meta := domain.EventMeta{
		TxHash:      domain.NormalizeAddress(vLog.TxHash.Hex()),
		BlockNumber: vLog.BlockNumber,
		LogIndex:    vLog.Index,
	}
	user := domain.NormalizeAddress(common.BytesToAddress(vLog.Topics[1].Bytes()).Hex())

	switch vLog.Topics[0] {
	case curveBuyEventSignature:
		return domain.CurveBuyEvent{
			Buyer:     user,
			AssetIn:   word(vLog.Data, 0),
			TokensOut: word(vLog.Data, 1),
			Fee:       word(vLog.Data, 2),
			EventMeta: meta,
		}, nil
	case curveSellEventSignature:
		return domain.CurveSellEvent{
			Seller:    user,
			TokensIn:  word(vLog.Data, 0),
			AssetOut:  word(vLog.Data, 1),
			Fee:       word(vLog.Data, 2),
			EventMeta: meta,
		}, nil
	default:
		return nil, fmt.Errorf("unknown curve trade signature: %s", vLog.Topics[0].Hex())
	}
}

// parsePairSwapLog parses a DEX pair Swap log into the tagged trade union.
func parsePairSwapLog(vLog types.Log) (domain.RawTradeEvent, error) {
	if len(vLog.Topics) != 3 {
		return nil, fmt.Errorf("invalid Swap event: expected 3 topics, got %d", len(vLog.Topics))
	}
	if len(vLog.Data) < 128 {
		return nil, fmt.Errorf("invalid Swap event: insufficient data in tx %s", vLog.TxHash.Hex())
	}

	return domain.PairSwapEvent{
		PairAddress: domain.NormalizeAddress(vLog.Address.Hex()),
		Sender:      domain.NormalizeAddress(common.BytesToAddress(vLog.Topics[1].Bytes()).Hex()),
		To:          domain.NormalizeAddress(common.BytesToAddress(vLog.Topics[2].Bytes()).Hex()),
		Amount0In:   word(vLog.Data, 0),
		Amount1In:   word(vLog.Data, 1),
		Amount0Out:  word(vLog.Data, 2),
		Amount1Out:  word(vLog.Data, 3),
		EventMeta: domain.EventMeta{
			TxHash:      domain.NormalizeAddress(vLog.TxHash.Hex()),
			BlockNumber: vLog.BlockNumber,
			LogIndex:    vLog.Index,
		},
	}, nil
}

// parseFeeCollectedLog parses a CreatorFeeCollected log.
func parseFeeCollectedLog(vLog types.Log) (*domain.CreatorFeeCollection, error) {
	if len(vLog.Topics) != 2 {
		return nil, fmt.Errorf("invalid CreatorFeeCollected event: expected 2 topics, got %d", len(vLog.Topics))
	}
	if len(vLog.Data) < 32 {
		return nil, fmt.Errorf("invalid CreatorFeeCollected event: insufficient data in tx %s", vLog.TxHash.Hex())
	}

	return &domain.CreatorFeeCollection{
		CreatorAddress: domain.NormalizeAddress(common.BytesToAddress(vLog.Topics[1].Bytes()).Hex()),
		AmountWei:      word(vLog.Data, 0),
		TxHash:         domain.NormalizeAddress(vLog.TxHash.Hex()),
		BlockNumber:    vLog.BlockNumber,
	}, nil
}

// GraduationEvent is an observed curve graduation.
type GraduationEvent struct {
	TokenAddress string
	PairAddress  string
	BlockNumber  uint64
	TxHash       string
	Timestamp    time.Time
}

// parseGraduatedLog parses a Graduated log.
func parseGraduatedLog(vLog types.Log) (*GraduationEvent, error) {
	if len(vLog.Topics) != 2 {
		return nil, fmt.Errorf("invalid Graduated event: expected 2 topics, got %d", len(vLog.Topics))
	}
	if len(vLog.Data) < 32 {
		return nil, fmt.Errorf("invalid Graduated event: insufficient data in tx %s", vLog.TxHash.Hex())
	}

	return &GraduationEvent{
		TokenAddress: domain.NormalizeAddress(common.BytesToAddress(vLog.Topics[1].Bytes()).Hex()),
		PairAddress:  domain.NormalizeAddress(common.BytesToAddress(vLog.Data[12:32]).Hex()),
		BlockNumber:  vLog.BlockNumber,
		TxHash:       domain.NormalizeAddress(vLog.TxHash.Hex()),
	}, nil
}
