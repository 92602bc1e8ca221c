package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// Minimal view ABIs, parsed once at init
var (
	erc20ABI = mustABI(`[{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`)

	curveABI = mustABI(`[{"constant":true,"inputs":[],"name":"creator","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}]`)

	pairABI = mustABI(`[
		{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
		{"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
		{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"}
	]`)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// pairCache caches the token0/token1 ordering of DEX pairs. Pair ordering
// is immutable, so entries never expire.
type pairCache struct {
	mu    sync.RWMutex
	pairs map[string][2]string
}

func newPairCache() *pairCache {
	return &pairCache{pairs: make(map[string][2]string)}
}

func (c *pairCache) get(pair string) ([2]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tokens, ok := c.pairs[pair]
	return tokens, ok
}

func (c *pairCache) put(pair string, tokens [2]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs[pair] = tokens
}

// call packs and executes a view call, unpacking the result into out.
func (r *reader) call(ctx context.Context, contract string, contractABI abi.ABI, method string, out interface{}) error {
	data, err := contractABI.Pack(method)
	if err != nil {
		return fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	contractAddr := common.HexToAddress(contract)
	callCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()
	result, err := r.client.CallContract(callCtx, ethereum.CallMsg{
		To:   &contractAddr,
		Data: data,
	}, nil)
	if err != nil {
		if isMissingMethodError(err) {
			return fmt.Errorf("%s() on %s: %w", method, contract, domain.ErrMethodNotSupported)
		}
		return fmt.Errorf("failed to call %s on %s: %w", method, contract, err)
	}
	if len(result) == 0 {
		// No return data: the contract has no such method
		return fmt.Errorf("%s() on %s: %w", method, contract, domain.ErrMethodNotSupported)
	}

	if err := contractABI.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("failed to unpack %s result: %w", method, err)
	}

	return nil
}

// isMissingMethodError detects reverts caused by calling an accessor the
// contract does not implement.
func isMissingMethodError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "execution reverted") ||
		strings.Contains(errStr, "invalid opcode") ||
		strings.Contains(errStr, "function selector not recognized")
}

func (r *reader) TotalSupply(ctx context.Context, tokenAddress string) (*big.Int, error) {
	var supply *big.Int
	if err := r.call(ctx, tokenAddress, erc20ABI, "totalSupply", &supply); err != nil {
		return nil, err
	}
	return supply, nil
}

func (r *reader) Creator(ctx context.Context, curveAddress string) (string, error) {
	var creator common.Address
	if err := r.call(ctx, curveAddress, curveABI, "creator", &creator); err != nil {
		return "", err
	}
	return domain.NormalizeAddress(creator.Hex()), nil
}

func (r *reader) PairTokens(ctx context.Context, pairAddress string) (string, string, error) {
	pair := domain.NormalizeAddress(pairAddress)
	if tokens, ok := r.pairs.get(pair); ok {
		return tokens[0], tokens[1], nil
	}

	var token0, token1 common.Address
	if err := r.call(ctx, pairAddress, pairABI, "token0", &token0); err != nil {
		return "", "", err
	}
	if err := r.call(ctx, pairAddress, pairABI, "token1", &token1); err != nil {
		return "", "", err
	}

	tokens := [2]string{domain.NormalizeAddress(token0.Hex()), domain.NormalizeAddress(token1.Hex())}
	r.pairs.put(pair, tokens)
	return tokens[0], tokens[1], nil
}

func (r *reader) PairReserves(ctx context.Context, pairAddress string) (*big.Int, *big.Int, error) {
	var reserves struct {
		Reserve0           *big.Int
		Reserve1           *big.Int
		BlockTimestampLast uint32
	}
	if err := r.call(ctx, pairAddress, pairABI, "getReserves", &reserves); err != nil {
		return nil, nil, err
	}
	return reserves.Reserve0, reserves.Reserve1, nil
}
