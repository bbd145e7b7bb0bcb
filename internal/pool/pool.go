// Package pool adapts an external constant-product reference pool into the
// price source the settlement engine consults. The pool is never mutated
// from here; it is read as an oracle and counterparty.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidityCore/internal/fixedpoint"
)

// ErrNoLiquidity signals an empty or missing reference pair. Callers treat
// it as a per-order skip, never as a batch abort.
var ErrNoLiquidity = errors.New("reference pool has no liquidity for pair")

// swapFeePpm is the reference pool's proportional trading fee (0.3%).
const swapFeePpm = 3_000

// ReserveSource reports the reference pool's holdings of the two tokens of a
// pair, in native units. A missing pair surfaces as ErrNoLiquidity.
type ReserveSource interface {
	Reserves(ctx context.Context, tokenIn, tokenOut common.Address) (*big.Int, *big.Int, error)
}

// DecimalsSource resolves token decimal counts for normalization.
type DecimalsSource interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// Quote is the result of pricing a candidate input against the pool.
// All values are normalized to 18 decimals. ImpactPrice is the pre-trade
// reserveOut/reserveIn ratio.
type Quote struct {
	AmountIn    *big.Int
	AmountOut   *big.Int
	ImpactPrice *big.Int
	ReserveIn   *big.Int
	ReserveOut  *big.Int
}

// Adapter prices candidate inputs against the reference pool.
type Adapter struct {
	reserves ReserveSource
	decimals DecimalsSource
}

// NewAdapter builds an adapter over the given reserve and decimals sources.
func NewAdapter(reserves ReserveSource, decimals DecimalsSource) *Adapter {
	return &Adapter{reserves: reserves, decimals: decimals}
}

// QuoteInput prices amountIn (native units of tokenIn) against the pair.
func (a *Adapter) QuoteInput(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("input amount must be positive")
	}

	reserveIn, reserveOut, err := a.normalizedReserves(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}

	decimalsIn, err := a.decimals.Decimals(ctx, tokenIn)
	if err != nil {
		return nil, err
	}
	normalizedIn, err := fixedpoint.Normalize(amountIn, decimalsIn)
	if err != nil {
		return nil, err
	}

	return QuoteReserves(normalizedIn, reserveIn, reserveOut)
}

// QuoteNormalized prices an already-normalized input against the pair.
func (a *Adapter) QuoteNormalized(ctx context.Context, tokenIn, tokenOut common.Address, normalizedIn *big.Int) (*Quote, error) {
	reserveIn, reserveOut, err := a.normalizedReserves(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return QuoteReserves(normalizedIn, reserveIn, reserveOut)
}

// Spot returns the current reserveOut/reserveIn price at 18-decimal
// precision without applying any trade.
func (a *Adapter) Spot(ctx context.Context, tokenIn, tokenOut common.Address) (*big.Int, error) {
	reserveIn, reserveOut, err := a.normalizedReserves(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return fixedpoint.Ratio(reserveOut, reserveIn), nil
}

// PoolHolding returns the reference pool's normalized holding of one token
// of the pair.
func (a *Adapter) PoolHolding(ctx context.Context, tokenIn, tokenOut common.Address) (*big.Int, error) {
	_, reserveOut, err := a.normalizedReserves(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	return reserveOut, nil
}

func (a *Adapter) normalizedReserves(ctx context.Context, tokenIn, tokenOut common.Address) (*big.Int, *big.Int, error) {
	rawIn, rawOut, err := a.reserves.Reserves(ctx, tokenIn, tokenOut)
	if err != nil {
		return nil, nil, err
	}
	if rawIn == nil || rawOut == nil || rawIn.Sign() == 0 || rawOut.Sign() == 0 {
		return nil, nil, ErrNoLiquidity
	}

	decimalsIn, err := a.decimals.Decimals(ctx, tokenIn)
	if err != nil {
		return nil, nil, err
	}
	decimalsOut, err := a.decimals.Decimals(ctx, tokenOut)
	if err != nil {
		return nil, nil, err
	}

	reserveIn, err := fixedpoint.Normalize(rawIn, decimalsIn)
	if err != nil {
		return nil, nil, err
	}
	reserveOut, err := fixedpoint.Normalize(rawOut, decimalsOut)
	if err != nil {
		return nil, nil, err
	}
	return reserveIn, reserveOut, nil
}

// QuoteReserves prices a normalized input against normalized reserves using
// the constant-product formula after the 0.3% input fee:
//
//	amountOut = amountInAfterFee * reserveOut / (reserveIn + amountInAfterFee)
func QuoteReserves(amountIn, reserveIn, reserveOut *big.Int) (*Quote, error) {
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, ErrNoLiquidity
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("input amount must be positive")
	}

	afterFee := new(big.Int).Mul(amountIn, big.NewInt(1_000_000-swapFeePpm))
	afterFee.Quo(afterFee, big.NewInt(1_000_000))

	denominator := new(big.Int).Add(reserveIn, afterFee)
	amountOut := fixedpoint.MulDiv(afterFee, reserveOut, denominator)

	return &Quote{
		AmountIn:    new(big.Int).Set(amountIn),
		AmountOut:   amountOut,
		ImpactPrice: fixedpoint.Ratio(reserveOut, reserveIn),
		ReserveIn:   new(big.Int).Set(reserveIn),
		ReserveOut:  new(big.Int).Set(reserveOut),
	}, nil
}
