package model

import "math/big"

// HistoryEntry is one appended price/volume/balance snapshot for a pair.
// Balances are the reference pool's holdings of the pair's two tokens;
// volumes are cumulative since the recorder started, normalized.
type HistoryEntry struct {
	Pair      Pair     `json:"pair"`
	Price     *big.Int `json:"price"`
	Balance0  *big.Int `json:"balance0"`
	Balance1  *big.Int `json:"balance1"`
	Volume0   *big.Int `json:"volume0"`
	Volume1   *big.Int `json:"volume1"`
	Timestamp int64    `json:"timestamp"`
}
