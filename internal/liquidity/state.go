package liquidity

import (
	"fmt"
	"math/big"
	"sort"

	"liquidityCore/internal/model"
)

// PairFees pairs a fee entry with its bucket key for serialization.
type PairFees struct {
	Pair  model.Pair     `json:"pair"`
	Entry model.FeeEntry `json:"entry"`
}

// PairSnapshot is one slot's fee snapshot for serialization.
type PairSnapshot struct {
	Pair      model.Pair `json:"pair"`
	SlotIndex int        `json:"slot_index"`
	Value     *big.Int   `json:"value"`
}

// State is the ledger's full serializable content. Slots appear in slot
// index order within each pair.
type State struct {
	Buckets   []model.Bucket `json:"buckets"`
	Slots     []model.Slot   `json:"slots"`
	Fees      []PairFees     `json:"fees"`
	Snapshots []PairSnapshot `json:"snapshots"`
}

// Export copies the ledger content into a State, ordered deterministically.
func (l *Ledger) Export() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	state := State{}

	pairs := make([]model.Pair, 0, len(l.buckets))
	for pair := range l.buckets {
		pairs = append(pairs, pair)
	}
	sortPairs(pairs)
	for _, pair := range pairs {
		state.Buckets = append(state.Buckets, model.Bucket{
			Pair:  pair,
			Total: new(big.Int).Set(l.buckets[pair]),
		})
	}

	slotPairs := make([]model.Pair, 0, len(l.slots))
	for pair := range l.slots {
		slotPairs = append(slotPairs, pair)
	}
	sortPairs(slotPairs)
	for _, pair := range slotPairs {
		for _, slot := range l.slots[pair] {
			out := *slot
			out.Allocation = new(big.Int).Set(slot.Allocation)
			state.Slots = append(state.Slots, out)
		}
	}

	feePairs := make([]model.Pair, 0, len(l.fees))
	for pair := range l.fees {
		feePairs = append(feePairs, pair)
	}
	sortPairs(feePairs)
	for _, pair := range feePairs {
		entry := l.fees[pair]
		state.Fees = append(state.Fees, PairFees{
			Pair: pair,
			Entry: model.FeeEntry{
				Claimable:   new(big.Int).Set(entry.Claimable),
				Accumulated: new(big.Int).Set(entry.Accumulated),
			},
		})
	}

	snapPairs := make([]model.Pair, 0, len(l.snapshots))
	for pair := range l.snapshots {
		snapPairs = append(snapPairs, pair)
	}
	sortPairs(snapPairs)
	for _, pair := range snapPairs {
		indexes := make([]int, 0, len(l.snapshots[pair]))
		for index := range l.snapshots[pair] {
			indexes = append(indexes, index)
		}
		sort.Ints(indexes)
		for _, index := range indexes {
			state.Snapshots = append(state.Snapshots, PairSnapshot{
				Pair:      pair,
				SlotIndex: index,
				Value:     new(big.Int).Set(l.snapshots[pair][index]),
			})
		}
	}

	return state
}

// Restore replaces the ledger content with a previously exported State.
func (l *Ledger) Restore(state State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buckets = make(map[model.Pair]*big.Int)
	l.slots = make(map[model.Pair][]*model.Slot)
	l.fees = make(map[model.Pair]*model.FeeEntry)
	l.snapshots = make(map[model.Pair]map[int]*big.Int)

	for _, bucket := range state.Buckets {
		if bucket.Total == nil || bucket.Total.Sign() < 0 {
			return fmt.Errorf("invalid bucket total for %s", bucket.Pair)
		}
		l.buckets[bucket.Pair] = new(big.Int).Set(bucket.Total)
	}

	for _, slot := range state.Slots {
		if slot.Allocation == nil || slot.Allocation.Sign() < 0 {
			return fmt.Errorf("invalid slot allocation in %s", slot.Pair)
		}
		copied := slot
		copied.Allocation = new(big.Int).Set(slot.Allocation)
		l.slots[slot.Pair] = append(l.slots[slot.Pair], &copied)
	}

	for _, fees := range state.Fees {
		if fees.Entry.Claimable == nil || fees.Entry.Accumulated == nil {
			return fmt.Errorf("invalid fee entry for %s", fees.Pair)
		}
		if fees.Entry.Claimable.Sign() < 0 || fees.Entry.Accumulated.Sign() < 0 {
			return fmt.Errorf("negative fee entry for %s", fees.Pair)
		}
		l.fees[fees.Pair] = &model.FeeEntry{
			Claimable:   new(big.Int).Set(fees.Entry.Claimable),
			Accumulated: new(big.Int).Set(fees.Entry.Accumulated),
		}
	}

	for _, snap := range state.Snapshots {
		if snap.Value == nil || snap.Value.Sign() < 0 {
			return fmt.Errorf("invalid snapshot for %s slot %d", snap.Pair, snap.SlotIndex)
		}
		bySlot, ok := l.snapshots[snap.Pair]
		if !ok {
			bySlot = make(map[int]*big.Int)
			l.snapshots[snap.Pair] = bySlot
		}
		bySlot[snap.SlotIndex] = new(big.Int).Set(snap.Value)
	}

	return nil
}

func sortPairs(pairs []model.Pair) {
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].String() < pairs[j].String()
	})
}
