package liquidity

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityCore/internal/fixedpoint"
	"liquidityCore/internal/model"
	"liquidityCore/internal/registry"
)

// AddFees pulls amount (native units) of the canonical first token of the
// (tokenA, tokenB) pair from the payer and adds it to the pair's claimable
// pool and cumulative accumulator. Anyone may pay fees in.
func (l *Ledger) AddFees(ctx context.Context, tokenA, tokenB common.Address, payer common.Address, amount *big.Int) error {
	if err := l.guard.enter(); err != nil {
		return err
	}
	defer l.guard.exit()

	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("fee amount must be positive")
	}

	// Fees are denominated in the pair's paired token, so the pool they
	// land in belongs to deposits of the opposite token.
	pair := model.Pair{Token: tokenA, Paired: tokenB}.Canonical()

	received, err := l.bank.Transfer(ctx, pair.Paired, payer, l.vault, amount)
	if err != nil {
		return fmt.Errorf("pull fees: %w", err)
	}
	decimals, err := l.tokens.Decimals(ctx, pair.Paired)
	if err != nil {
		return err
	}
	normalized, err := fixedpoint.Normalize(received, decimals)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.creditFeesLocked(pair, normalized)
	l.mu.Unlock()
	return nil
}

// CreditFees adds already-custodied normalized fees to a pair's pool. The
// settlement engine uses this for the fees it withholds from internal fills.
func (l *Ledger) CreditFees(pair model.Pair, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	l.creditFeesLocked(pair, amount)
	l.mu.Unlock()
}

// Claim pays the caller their pro-rata share of the fees the pair has
// accrued since their slot's snapshot, in the pair's paired token. A zero
// share is a no-op, not an error. Returns the normalized amount paid.
func (l *Ledger) Claim(ctx context.Context, pair model.Pair, caller common.Address, slotIndex int) (*big.Int, error) {
	if err := l.guard.enter(); err != nil {
		return nil, err
	}
	defer l.guard.exit()

	l.mu.Lock()
	slot, err := l.slotAt(pair, slotIndex)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	if slot.Depositor != caller {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: slot %d", ErrNotDepositor, slotIndex)
	}

	entry := l.feeEntry(pair)
	snapshot := l.snapshot(pair, slotIndex)
	poolTotal := l.bucketTotal(pair)

	contributed := new(big.Int).Sub(entry.Accumulated, snapshot)
	if contributed.Sign() < 0 {
		contributed.SetInt64(0)
	}

	share := big.NewInt(0)
	if poolTotal.Sign() > 0 {
		share = fixedpoint.MulDiv(contributed, slot.Allocation, poolTotal)
	}
	if share.Cmp(entry.Claimable) > 0 {
		share.Set(entry.Claimable)
	}
	if share.Sign() == 0 {
		l.mu.Unlock()
		return big.NewInt(0), nil
	}

	// Snapshot advances before funds move so a reentrant claim from a
	// transfer callback finds nothing left to take.
	snapshot.Set(entry.Accumulated)
	entry.Claimable.Sub(entry.Claimable, share)
	recipient := slot.Recipient
	l.mu.Unlock()

	decimals, err := l.tokens.Decimals(ctx, pair.Paired)
	if err != nil {
		return nil, err
	}
	payout, err := fixedpoint.Denormalize(share, decimals)
	if err != nil {
		return nil, err
	}
	if _, err := l.bank.Transfer(ctx, pair.Paired, l.vault, recipient, payout); err != nil {
		return nil, fmt.Errorf("fee payout: %w", err)
	}

	l.logger.Info("fees claimed",
		zap.String("pair", pair.String()),
		zap.Int("slot", slotIndex),
		zap.String("share", share.String()))

	l.notify.Publish(ctx, registry.Event{
		Kind:      registry.EventFeeClaim,
		Pair:      pair,
		Depositor: caller,
		SlotIndex: slotIndex,
		Amount:    new(big.Int).Set(share),
	})

	return share, nil
}

// FeeState returns copies of the pair's claimable pool and accumulator.
func (l *Ledger) FeeState(pair model.Pair) (claimable, accumulated *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.feeEntry(pair)
	return new(big.Int).Set(entry.Claimable), new(big.Int).Set(entry.Accumulated)
}

// SnapshotValue returns a copy of a slot's fee snapshot.
func (l *Ledger) SnapshotValue(pair model.Pair, slotIndex int) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.snapshot(pair, slotIndex))
}

// creditFeesLocked grows both counters. The accumulator never decreases.
// Callers hold l.mu.
func (l *Ledger) creditFeesLocked(pair model.Pair, amount *big.Int) {
	entry := l.feeEntry(pair)
	entry.Claimable.Add(entry.Claimable, amount)
	entry.Accumulated.Add(entry.Accumulated, amount)
}

// initSnapshotLocked pins a new slot to the current accumulator value so it
// only earns from fees added after its creation. Callers hold l.mu.
func (l *Ledger) initSnapshotLocked(pair model.Pair, slotIndex int) {
	entry := l.feeEntry(pair)
	l.snapshot(pair, slotIndex).Set(entry.Accumulated)
}

// feeEntry returns the mutable fee entry, creating it on first use.
// Callers hold l.mu.
func (l *Ledger) feeEntry(pair model.Pair) *model.FeeEntry {
	entry, ok := l.fees[pair]
	if !ok {
		entry = &model.FeeEntry{Claimable: big.NewInt(0), Accumulated: big.NewInt(0)}
		l.fees[pair] = entry
	}
	return entry
}

// snapshot returns the mutable snapshot value for a slot, creating it at
// zero on first use. Callers hold l.mu.
func (l *Ledger) snapshot(pair model.Pair, slotIndex int) *big.Int {
	bySlot, ok := l.snapshots[pair]
	if !ok {
		bySlot = make(map[int]*big.Int)
		l.snapshots[pair] = bySlot
	}
	value, ok := bySlot[slotIndex]
	if !ok {
		value = big.NewInt(0)
		bySlot[slotIndex] = value
	}
	return value
}
