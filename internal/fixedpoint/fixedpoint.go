// Package fixedpoint converts token amounts between their native decimal
// precision and the canonical 18-decimal representation used everywhere else
// in the ledger.
package fixedpoint

import (
	"fmt"
	"math/big"
)

// Decimals is the canonical fixed-point precision.
const Decimals = 18

// One is 10^18, the canonical unit. Treat as read-only.
var One = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Normalize rescales a native amount to 18 decimals. For tokens with more
// than 18 native decimals the low-order digits are truncated; the round trip
// through Denormalize is lossless only for nativeDecimals <= 18.
func Normalize(amount *big.Int, nativeDecimals uint8) (*big.Int, error) {
	if amount == nil {
		return nil, fmt.Errorf("amount is nil")
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount is negative: %s", amount)
	}
	if nativeDecimals == Decimals {
		return new(big.Int).Set(amount), nil
	}
	if nativeDecimals < Decimals {
		return new(big.Int).Mul(amount, pow10(Decimals-nativeDecimals)), nil
	}
	return new(big.Int).Quo(amount, pow10(nativeDecimals-Decimals)), nil
}

// Denormalize rescales a canonical 18-decimal amount back to native units,
// truncating when the token has fewer than 18 decimals.
func Denormalize(amount *big.Int, nativeDecimals uint8) (*big.Int, error) {
	if amount == nil {
		return nil, fmt.Errorf("amount is nil")
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount is negative: %s", amount)
	}
	if nativeDecimals == Decimals {
		return new(big.Int).Set(amount), nil
	}
	if nativeDecimals < Decimals {
		return new(big.Int).Quo(amount, pow10(Decimals-nativeDecimals)), nil
	}
	return new(big.Int).Mul(amount, pow10(nativeDecimals-Decimals)), nil
}

// MulDiv returns a * b / denom with full intermediate precision.
func MulDiv(a, b, denom *big.Int) *big.Int {
	if denom == nil || denom.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, denom)
}

// Ratio returns a/b as an 18-decimal fixed-point value.
func Ratio(a, b *big.Int) *big.Int {
	return MulDiv(a, One, b)
}
