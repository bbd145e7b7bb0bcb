// Package liquidity holds the pair-isolated liquidity ledger and its fee
// accumulator. Buckets are keyed by an ordered (token, paired) pair; funds
// in one bucket never settle trades or payouts for another.
package liquidity

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityCore/internal/fixedpoint"
	"liquidityCore/internal/model"
	"liquidityCore/internal/registry"
	"liquidityCore/internal/token"
)

var (
	// ErrReentry reports a recursive call into a mutating entry point.
	ErrReentry = errors.New("reentrant ledger call")
	// ErrSlotNotFound reports an unknown slot index.
	ErrSlotNotFound = errors.New("slot not found")
	// ErrNotDepositor reports a caller that does not own the slot.
	ErrNotDepositor = errors.New("caller is not the slot depositor")
	// ErrInsufficientAllocation reports a withdrawal larger than the slot.
	ErrInsufficientAllocation = errors.New("requested amount exceeds slot allocation")
	// ErrInsufficientLiquidity reports a bucket too small for a settlement.
	ErrInsufficientLiquidity = errors.New("bucket liquidity is insufficient")
	// ErrNoMarket reports a compensation token with no market against the
	// withdrawal token.
	ErrNoMarket = errors.New("no market for compensation token")
)

// PriceSource resolves a spot price between two tokens at 18-decimal
// precision: units of tokenOut per unit of tokenIn.
type PriceSource interface {
	Spot(ctx context.Context, tokenIn, tokenOut common.Address) (*big.Int, error)
}

// Ledger is the liquidity ledger. All stored amounts are normalized to
// 18 decimals; the bank interface speaks native units at the boundary.
type Ledger struct {
	bank     token.Bank
	tokens   *token.Registry
	prices   PriceSource
	notify   *registry.Fanout
	logger   *zap.Logger
	vault    common.Address
	decayFee DecayConfig

	guard entryGuard

	mu        sync.RWMutex
	buckets   map[model.Pair]*big.Int
	slots     map[model.Pair][]*model.Slot
	fees      map[model.Pair]*model.FeeEntry
	snapshots map[model.Pair]map[int]*big.Int
}

// Config collects the ledger's collaborators.
type Config struct {
	Bank     token.Bank
	Tokens   *token.Registry
	Prices   PriceSource
	Notify   *registry.Fanout
	Logger   *zap.Logger
	Vault    common.Address
	DecayFee DecayConfig
}

// NewLedger builds an empty ledger.
func NewLedger(cfg Config) *Ledger {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		bank:      cfg.Bank,
		tokens:    cfg.Tokens,
		prices:    cfg.Prices,
		notify:    cfg.Notify,
		logger:    logger,
		vault:     cfg.Vault,
		decayFee:  cfg.DecayFee,
		buckets:   make(map[model.Pair]*big.Int),
		slots:     make(map[model.Pair][]*model.Slot),
		fees:      make(map[model.Pair]*model.FeeEntry),
		snapshots: make(map[model.Pair]map[int]*big.Int),
	}
}

// Vault returns the ledger's custody account.
func (l *Ledger) Vault() common.Address {
	return l.vault
}

// Deposit pulls amount (native units) of pair.Token from the depositor and
// opens a new slot in the pair's bucket, sized by the amount the vault
// actually received. Returns the new slot index.
func (l *Ledger) Deposit(ctx context.Context, pair model.Pair, depositor common.Address, amount *big.Int) (int, error) {
	if err := l.guard.enter(); err != nil {
		return 0, err
	}
	defer l.guard.exit()

	if amount == nil || amount.Sign() <= 0 {
		return 0, fmt.Errorf("deposit amount must be positive")
	}

	received, err := l.bank.Transfer(ctx, pair.Token, depositor, l.vault, amount)
	if err != nil {
		return 0, fmt.Errorf("pull deposit: %w", err)
	}
	if received.Sign() == 0 {
		return 0, fmt.Errorf("deposit delivered nothing to the vault")
	}

	decimals, err := l.tokens.Decimals(ctx, pair.Token)
	if err != nil {
		return 0, err
	}
	allocation, err := fixedpoint.Normalize(received, decimals)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	slot := &model.Slot{
		Pair:       pair,
		Depositor:  depositor,
		Recipient:  depositor,
		Allocation: allocation,
		CreatedAt:  time.Now().Unix(),
	}
	l.slots[pair] = append(l.slots[pair], slot)
	index := len(l.slots[pair]) - 1
	l.bucketTotal(pair).Add(l.bucketTotal(pair), allocation)
	l.initSnapshotLocked(pair, index)
	l.mu.Unlock()

	l.logger.Info("deposit",
		zap.String("pair", pair.String()),
		zap.String("depositor", depositor.Hex()),
		zap.Int("slot", index),
		zap.String("allocation", allocation.String()))

	l.notify.Publish(ctx, registry.Event{
		Kind:      registry.EventDeposit,
		Pair:      pair,
		Depositor: depositor,
		SlotIndex: index,
		Amount:    new(big.Int).Set(allocation),
	})

	return index, nil
}

// Withdraw pays the depositor primaryAmount (native units of pair.Token)
// out of their slot, optionally with part of the value compensated in a
// different token at its current market price. Both transfers must succeed
// before any allocation is deducted.
func (l *Ledger) Withdraw(ctx context.Context, pair model.Pair, caller common.Address, slotIndex int, primaryAmount *big.Int, compToken common.Address, compAmount *big.Int) error {
	if err := l.guard.enter(); err != nil {
		return err
	}
	defer l.guard.exit()

	l.mu.RLock()
	slot, err := l.slotAt(pair, slotIndex)
	l.mu.RUnlock()
	if err != nil {
		return err
	}
	if slot.Depositor != caller {
		return fmt.Errorf("%w: slot %d", ErrNotDepositor, slotIndex)
	}

	decimals, err := l.tokens.Decimals(ctx, pair.Token)
	if err != nil {
		return err
	}
	if primaryAmount == nil {
		primaryAmount = big.NewInt(0)
	}
	primaryNorm, err := fixedpoint.Normalize(primaryAmount, decimals)
	if err != nil {
		return err
	}

	payoutTotal := new(big.Int).Set(primaryNorm)
	wantCompensation := compAmount != nil && compAmount.Sign() > 0
	if wantCompensation {
		equivalent, err := l.compensationEquivalent(ctx, pair.Token, compToken, compAmount)
		if err != nil {
			return err
		}
		payoutTotal.Add(payoutTotal, equivalent)
	}
	if payoutTotal.Sign() == 0 {
		return fmt.Errorf("withdrawal amount must be positive")
	}

	// The holding-time fee is charged against the slot but stays in the
	// bucket, where it backs the remaining depositors like a donation.
	held := time.Since(time.Unix(slot.CreatedAt, 0))
	fee := DecayFee(payoutTotal, held, l.decayFee)
	deduction := new(big.Int).Add(payoutTotal, fee)

	if deduction.Cmp(slot.Allocation) > 0 {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientAllocation, deduction, slot.Allocation)
	}

	// Move funds first: a failed transfer aborts the withdrawal with the
	// allocation untouched.
	if primaryNorm.Sign() > 0 {
		payout, err := fixedpoint.Denormalize(primaryNorm, decimals)
		if err != nil {
			return err
		}
		if _, err := l.bank.Transfer(ctx, pair.Token, l.vault, slot.Recipient, payout); err != nil {
			return fmt.Errorf("primary payout: %w", err)
		}
	}
	if wantCompensation {
		if _, err := l.bank.Transfer(ctx, compToken, l.vault, slot.Recipient, compAmount); err != nil {
			return fmt.Errorf("compensation payout: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	live, err := l.slotAt(pair, slotIndex)
	if err != nil {
		return err
	}
	if live.Allocation.Cmp(deduction) < 0 {
		return fmt.Errorf("allocation changed under withdrawal: need %s, have %s", deduction, live.Allocation)
	}
	live.Allocation.Sub(live.Allocation, deduction)
	bucket := l.bucketTotal(pair)
	if bucket.Cmp(payoutTotal) < 0 {
		return fmt.Errorf("bucket underflow for %s: need %s, have %s", pair, payoutTotal, bucket)
	}
	bucket.Sub(bucket, payoutTotal)

	l.notify.Publish(ctx, registry.Event{
		Kind:      registry.EventWithdraw,
		Pair:      pair,
		Depositor: caller,
		SlotIndex: slotIndex,
		Amount:    payoutTotal,
	})

	return nil
}

// ChangeDepositor reassigns slot ownership. The new owner inherits the
// slot's fee snapshot and with it any unclaimed fee position.
func (l *Ledger) ChangeDepositor(ctx context.Context, pair model.Pair, caller common.Address, slotIndex int, newDepositor common.Address) error {
	if err := l.guard.enter(); err != nil {
		return err
	}
	defer l.guard.exit()

	l.mu.Lock()
	slot, err := l.slotAt(pair, slotIndex)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if slot.Depositor != caller {
		l.mu.Unlock()
		return fmt.Errorf("%w: slot %d", ErrNotDepositor, slotIndex)
	}
	if slot.Allocation.Sign() == 0 {
		l.mu.Unlock()
		return fmt.Errorf("slot %d has no allocation", slotIndex)
	}
	slot.Depositor = newDepositor
	slot.Recipient = newDepositor
	l.mu.Unlock()

	l.notify.Publish(ctx, registry.Event{
		Kind:      registry.EventDepositorChange,
		Pair:      pair,
		Depositor: newDepositor,
		SlotIndex: slotIndex,
	})

	return nil
}

// Donate pulls amount of pair.Token from the donor and adds it to the
// bucket total without creating a slot. Donated funds cannot be reclaimed
// individually; they back payouts and settlements for the pair.
func (l *Ledger) Donate(ctx context.Context, pair model.Pair, donor common.Address, amount *big.Int) error {
	if err := l.guard.enter(); err != nil {
		return err
	}
	defer l.guard.exit()

	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("donation amount must be positive")
	}

	received, err := l.bank.Transfer(ctx, pair.Token, donor, l.vault, amount)
	if err != nil {
		return fmt.Errorf("pull donation: %w", err)
	}
	decimals, err := l.tokens.Decimals(ctx, pair.Token)
	if err != nil {
		return err
	}
	normalized, err := fixedpoint.Normalize(received, decimals)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.bucketTotal(pair).Add(l.bucketTotal(pair), normalized)
	l.mu.Unlock()

	l.notify.Publish(ctx, registry.Event{
		Kind:   registry.EventDonation,
		Pair:   pair,
		Amount: normalized,
	})

	return nil
}

// Available returns the bucket's total normalized liquidity.
func (l *Ledger) Available(pair model.Pair) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total, ok := l.buckets[pair]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(total)
}

// Slot returns a copy of one slot.
func (l *Ledger) Slot(pair model.Pair, slotIndex int) (model.Slot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	slot, err := l.slotAt(pair, slotIndex)
	if err != nil {
		return model.Slot{}, err
	}
	out := *slot
	out.Allocation = new(big.Int).Set(slot.Allocation)
	return out, nil
}

// SlotCount returns the number of slots ever created in the bucket,
// including drained ones.
func (l *Ledger) SlotCount(pair model.Pair) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.slots[pair])
}

// Credit adds normalized liquidity to a bucket without moving funds; the
// settlement engine calls this after it has already custodied the tokens.
func (l *Ledger) Credit(pair model.Pair, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	l.bucketTotal(pair).Add(l.bucketTotal(pair), amount)
	l.mu.Unlock()
}

// Debit removes normalized liquidity from a bucket. Fails if the bucket
// cannot cover the amount; the engine treats that as a batch abort.
func (l *Ledger) Debit(pair model.Pair, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	total := l.bucketTotal(pair)
	if total.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s needs %s, has %s", ErrInsufficientLiquidity, pair, amount, total)
	}
	total.Sub(total, amount)
	return nil
}

func (l *Ledger) compensationEquivalent(ctx context.Context, primaryToken, compToken common.Address, compAmount *big.Int) (*big.Int, error) {
	if compToken == (common.Address{}) {
		return nil, fmt.Errorf("compensation token is required when a compensation amount is set")
	}
	price, err := l.prices.Spot(ctx, compToken, primaryToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMarket, compToken.Hex())
	}

	compDecimals, err := l.tokens.Decimals(ctx, compToken)
	if err != nil {
		return nil, err
	}
	compNorm, err := fixedpoint.Normalize(compAmount, compDecimals)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(compNorm, price, fixedpoint.One), nil
}

// bucketTotal returns the mutable bucket counter, creating it on first use.
// Callers hold l.mu.
func (l *Ledger) bucketTotal(pair model.Pair) *big.Int {
	total, ok := l.buckets[pair]
	if !ok {
		total = big.NewInt(0)
		l.buckets[pair] = total
	}
	return total
}

// slotAt returns the live slot pointer. Callers hold l.mu.
func (l *Ledger) slotAt(pair model.Pair, slotIndex int) (*model.Slot, error) {
	slots := l.slots[pair]
	if slotIndex < 0 || slotIndex >= len(slots) {
		return nil, fmt.Errorf("%w: %s index %d", ErrSlotNotFound, pair, slotIndex)
	}
	return slots[slotIndex], nil
}
