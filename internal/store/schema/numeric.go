package schema

import "math/big"

// Token amounts are stored as numeric(78,0) text so that full uint256
// values survive the round trip through Postgres.

// FormatBig renders an amount for a numeric(78,0) column. Nil is "0".
func FormatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// ParseBig reads a numeric(78,0) column back into a big.Int. Unparseable
// or empty values come back as zero.
func ParseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
