package model

import "math/big"

// FeeEntry is the per-pair fee state. Claimable is the undistributed pool,
// denominated in the pair's paired token. Accumulated only ever grows; claims
// draw from Claimable, never from Accumulated.
type FeeEntry struct {
	Claimable   *big.Int `json:"claimable"`
	Accumulated *big.Int `json:"accumulated"`
}

// FeeSnapshot is the accumulator value a slot last settled against. The
// difference between the pair's current accumulator and the snapshot is the
// fee mass the slot has not yet taken its share of.
type FeeSnapshot struct {
	SlotIndex int      `json:"slot_index"`
	Value     *big.Int `json:"value"`
}
