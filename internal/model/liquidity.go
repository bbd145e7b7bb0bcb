package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Bucket is the total normalized liquidity attributable to one pair.
// The total covers every live slot allocation plus un-slotted donations.
type Bucket struct {
	Pair  Pair     `json:"pair"`
	Total *big.Int `json:"total"`
}

// Slot is one depositor's claim inside a bucket. A slot whose allocation has
// been drawn down to zero stays in place so indexes remain stable.
type Slot struct {
	Pair       Pair           `json:"pair"`
	Depositor  common.Address `json:"depositor"`
	Recipient  common.Address `json:"recipient"`
	Allocation *big.Int       `json:"allocation"`
	CreatedAt  int64          `json:"created_at"`
}
