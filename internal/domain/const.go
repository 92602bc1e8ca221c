package domain

import "time"

const (
	// Blockchain constants
	ZeroAddress = "0x0000000000000000000000000000000000000000"

	// DefaultBNBPriceUSD is the fallback BNB/USD price used when both the
	// on-chain reserve read and the reference price API are unavailable.
	DefaultBNBPriceUSD = 600.0

	// SniperWindowBlocks is the number of blocks after a token's first
	// observed transfer during which a buyer counts as a sniper.
	SniperWindowBlocks = 10

	// FeeSweepMaxBlocks caps how far the creator-fee watermark may advance
	// in a single sweep. The cap respects upstream RPC quotas; the fee
	// watermark is allowed to lag the main watermark indefinitely.
	FeeSweepMaxBlocks = 1000

	// StartupBackfillBlocks is how far back the realtime indexer scans on
	// startup, and the default range for tokens with an unknown deploy block.
	StartupBackfillBlocks = 100

	// AggregateCacheTTL is how long the read API serves a cached aggregate
	// before consulting the store again.
	AggregateCacheTTL = 5 * time.Minute
)

// Chain represents the blockchain network identifier using CAIP-2 format
type Chain string

const (
	// ChainBSCMainnet represents BNB Smart Chain mainnet (chain ID: 56)
	ChainBSCMainnet Chain = "eip155:56"
	// ChainBSCTestnet represents BNB Smart Chain testnet (chain ID: 97)
	ChainBSCTestnet Chain = "eip155:97"
)
