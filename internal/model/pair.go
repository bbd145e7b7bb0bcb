package model

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pair identifies an isolation bucket: deposits of Token earn fees and settle
// trades only against Paired. (A, B) and (B, A) are distinct buckets.
type Pair struct {
	Token  common.Address `json:"token"`
	Paired common.Address `json:"paired"`
}

// Reverse returns the opposite orientation of the pair.
func (p Pair) Reverse() Pair {
	return Pair{Token: p.Paired, Paired: p.Token}
}

// Canonical returns the pair oriented so that Paired is the lower address.
// Fee pools are keyed this way: the canonical-first token funds the pool.
func (p Pair) Canonical() Pair {
	if bytes.Compare(p.Token.Bytes(), p.Paired.Bytes()) < 0 {
		return p.Reverse()
	}
	return p
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Token.Hex(), p.Paired.Hex())
}
