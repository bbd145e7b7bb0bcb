package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OrderStatus tracks the lifecycle of a limit order.
type OrderStatus uint8

const (
	OrderCancelled OrderStatus = iota
	OrderPending
	OrderPartiallyFilled
	OrderFilled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderCancelled:
		return "cancelled"
	case OrderPending:
		return "pending"
	case OrderPartiallyFilled:
		return "partially_filled"
	case OrderFilled:
		return "filled"
	default:
		return "unknown"
	}
}

// Fillable reports whether the order can still accept fills.
func (s OrderStatus) Fillable() bool {
	return s == OrderPending || s == OrderPartiallyFilled
}

// Order is one resting limit order. Amounts are normalized to 18 decimals:
// Pending and Filled in input-token units, Delivered in output-token units.
// Prices are 18-decimal fixed-point output-per-input ratios.
type Order struct {
	ID        string         `json:"id"`
	Maker     common.Address `json:"maker"`
	Recipient common.Address `json:"recipient"`
	TokenIn   common.Address `json:"token_in"`
	TokenOut  common.Address `json:"token_out"`
	MinPrice  *big.Int       `json:"min_price"`
	MaxPrice  *big.Int       `json:"max_price"`
	Pending   *big.Int       `json:"pending"`
	Filled    *big.Int       `json:"filled"`
	Delivered *big.Int       `json:"delivered"`
	Status    OrderStatus    `json:"status"`
	CreatedAt int64          `json:"created_at"`
}

// Pair returns the settlement pair for the order, oriented input/output.
func (o *Order) Pair() Pair {
	return Pair{Token: o.TokenIn, Paired: o.TokenOut}
}
