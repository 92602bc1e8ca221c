package classify

import (
	"math/big"
	"time"

	"github.com/haven-markets/haven-indexer/internal/domain"
	"github.com/haven-markets/haven-indexer/internal/ledger"
)

// Input is everything one classification pass needs. Holders must already
// exclude the token contract and pair addresses; percentages still use the
// full total supply as denominator.
type Input struct {
	Token     *domain.Token
	Transfers []domain.TransferEvent
	Swaps     []domain.SwapRecord
	Holders   []domain.HolderBalance
	// FirstBlock is the token's first observed transfer block; the sniper
	// window is the following domain.SniperWindowBlocks blocks.
	FirstBlock uint64
	// SiblingHoldings maps an address to how many other tokens by the same
	// creator it currently holds.
	SiblingHoldings map[string]int
	// ExistingFlags is the current global registry for the wallets under
	// consideration. Flags merge additively: a wallet once flagged stays
	// flagged unless explicitly cleared by an operator.
	ExistingFlags map[string]domain.WalletFlags
	Now           time.Time
}

// BuyerSet derives the set of addresses that acquired tokens through a
// purchase: recipients of transfers sent by the token or curve contract,
// plus traders on normalized buy swaps. The map value is the earliest
// block at which the address bought.
func BuyerSet(token *domain.Token, transfers []domain.TransferEvent, swaps []domain.SwapRecord) map[string]uint64 {
	buyers := make(map[string]uint64)
	record := func(addr string, blockNumber uint64) {
		if prev, ok := buyers[addr]; !ok || blockNumber < prev {
			buyers[addr] = blockNumber
		}
	}

	contract := domain.NormalizeAddress(token.Address)
	curve := domain.NormalizeAddress(token.CurveAddress())
	for _, t := range transfers {
		if t.From == contract || t.From == curve {
			record(t.To, t.BlockNumber)
		}
	}

	for _, s := range swaps {
		if s.IsBuy {
			record(s.Trader, s.BlockNumber)
		}
	}

	return buyers
}

// Classify labels the token's holders and produces the merged global flag
// rows plus the percentage-of-supply stats for each label.
func Classify(in Input) domain.ClassificationStats {
	buyers := BuyerSet(in.Token, in.Transfers, in.Swaps)
	creator := domain.NormalizeAddress(in.Token.CreatorAddress)
	sniperCutoff := in.FirstBlock + domain.SniperWindowBlocks

	var (
		sniperSum   = new(big.Int)
		insiderSum  = new(big.Int)
		phishingSum = new(big.Int)
		stats       domain.ClassificationStats
	)

	for _, h := range in.Holders {
		addr := h.HolderAddress

		firstBuy, bought := buyers[addr]
		isSniper := bought && in.FirstBlock > 0 && firstBuy <= sniperCutoff
		isPhishing := !bought
		isInsider := addr != creator && in.SiblingHoldings[addr] >= 1

		if !isSniper && !isPhishing && !isInsider {
			continue
		}

		flags, known := in.ExistingFlags[addr]
		if !known {
			flags = domain.WalletFlags{
				WalletAddress:  addr,
				FirstFlaggedAt: in.Now,
			}
		}
		flags.UpdatedAt = in.Now

		// Counters move only when a flag first turns on, so re-running a
		// pass over the same history leaves flag rows unchanged.
		if isSniper {
			if !flags.IsSniper {
				flags.IsSniper = true
				flags.SniperScore++
			}
			sniperSum.Add(sniperSum, h.Balance)
			stats.SniperCount++
		}
		if isPhishing {
			if !flags.IsPhishing {
				flags.IsPhishing = true
				flags.PhishingReports++
			}
			phishingSum.Add(phishingSum, h.Balance)
			stats.PhishingCount++
		}
		if isInsider {
			flags.IsInsider = true
			// Connections counts distinct same-creator tokens held, this one included
			if n := in.SiblingHoldings[addr] + 1; n > flags.InsiderConnections {
				flags.InsiderConnections = n
			}
			insiderSum.Add(insiderSum, h.Balance)
			stats.InsiderCount++
		}

		stats.Flags = append(stats.Flags, flags)
	}

	stats.SniperPercent = ledger.PercentOfSupply(sniperSum, in.Token.TotalSupply)
	stats.InsiderPercent = ledger.PercentOfSupply(insiderSum, in.Token.TotalSupply)
	stats.PhishingPercent = ledger.PercentOfSupply(phishingSum, in.Token.TotalSupply)

	return stats
}
