package ledger

import (
	"math/big"
	"sort"
	"time"

	"github.com/haven-markets/haven-indexer/internal/domain"
)

// Fold is the result of replaying a token's transfers into signed balances.
// All arithmetic stays in big.Int; raw amounts routinely exceed 2^53.
type Fold struct {
	// Balances maps holder address to signed balance. The zero address is
	// excluded on both sides of every transfer.
	Balances map[string]*big.Int
	// Burned is the total amount transferred to the zero address.
	Burned *big.Int
	// FirstBlock is the block of the first observed transfer (0 when empty).
	FirstBlock uint64
	// NegativeHolders lists addresses whose balance went negative during
	// the fold. A non-empty list indicates an ingestion gap; callers must
	// surface it rather than clamp silently.
	NegativeHolders []string
}

// Replay folds a sequence of transfers into per-address balances. Order
// does not matter: addition is commutative.
func Replay(transfers []domain.TransferEvent) Fold {
	balances := make(map[string]*big.Int)
	burned := new(big.Int)
	firstBlock := uint64(0)

	for _, t := range transfers {
		if firstBlock == 0 || t.BlockNumber < firstBlock {
			firstBlock = t.BlockNumber
		}

		if t.From != domain.ZeroAddress {
			if balances[t.From] == nil {
				balances[t.From] = new(big.Int)
			}
			balances[t.From] = new(big.Int).Sub(balances[t.From], t.Amount)
		}

		if t.To != domain.ZeroAddress {
			if balances[t.To] == nil {
				balances[t.To] = new(big.Int)
			}
			balances[t.To] = new(big.Int).Add(balances[t.To], t.Amount)
		} else {
			burned = new(big.Int).Add(burned, t.Amount)
		}
	}

	var negative []string
	for addr, bal := range balances {
		if bal.Sign() < 0 {
			negative = append(negative, addr)
		}
	}
	sort.Strings(negative)

	return Fold{
		Balances:        balances,
		Burned:          burned,
		FirstBlock:      firstBlock,
		NegativeHolders: negative,
	}
}

// PercentOfSupply expresses amount as a whole percentage of totalSupply,
// computed in basis points with big.Int division and rounded half-up. This
// is the single rounding policy for every percentage the indexer produces.
func PercentOfSupply(amount, totalSupply *big.Int) int {
	if totalSupply == nil || totalSupply.Sign() <= 0 || amount == nil || amount.Sign() <= 0 {
		return 0
	}

	bps := new(big.Int).Mul(amount, big.NewInt(10000))
	bps.Quo(bps, totalSupply)
	return int(new(big.Int).Add(bps, big.NewInt(50)).Int64() / 100)
}

// BuildStats derives holder statistics from a fold. Holders exclude the
// token contract and its paired liquidity address from the list and from
// the holder count, but every percentage uses the full total supply as
// denominator. Dev concentration uses the creator's raw balance from the
// fold, before exclusions, since the creator is a normal holder.
func BuildStats(fold Fold, token *domain.Token, now time.Time) domain.HolderStats {
	contract := domain.NormalizeAddress(token.Address)
	pair := domain.NormalizeAddress(token.PairAddress)

	holders := make([]domain.HolderBalance, 0, len(fold.Balances))
	for addr, bal := range fold.Balances {
		if bal.Sign() <= 0 {
			continue
		}
		if addr == contract || (pair != "" && addr == pair) {
			continue
		}
		holders = append(holders, domain.HolderBalance{
			TokenAddress:  contract,
			HolderAddress: addr,
			Balance:       bal,
			UpdatedAt:     now,
		})
	}

	sort.SliceStable(holders, func(i, j int) bool {
		return holders[i].Balance.Cmp(holders[j].Balance) > 0
	})

	top10 := new(big.Int)
	for i, h := range holders {
		if i >= 10 {
			break
		}
		top10.Add(top10, h.Balance)
	}

	dev := new(big.Int)
	if creator := domain.NormalizeAddress(token.CreatorAddress); creator != "" {
		if bal, ok := fold.Balances[creator]; ok && bal.Sign() > 0 {
			dev = bal
		}
	}

	return domain.HolderStats{
		Holders:      holders,
		Top10Percent: PercentOfSupply(top10, token.TotalSupply),
		DevPercent:   PercentOfSupply(dev, token.TotalSupply),
		Burned:       fold.Burned,
	}
}
