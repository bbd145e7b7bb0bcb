package liquidity

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"liquidityCore/internal/model"
	"liquidityCore/internal/token"
)

// feeFixture deposits alice's liquidity into (A, B) and funds bob to pay
// fees in. Fees for the (A, B) bucket are denominated in tokenB.
func feeFixture(t *testing.T, aliceDeposit, bucketTopUp int64) *fixture {
	t.Helper()
	f := newFixture(t, 18)
	f.bank.Mint(tokenA, alice, units(aliceDeposit))
	if _, err := f.ledger.Deposit(context.Background(), pairAB, alice, units(aliceDeposit)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if bucketTopUp > 0 {
		f.bank.Mint(tokenA, bob, units(bucketTopUp))
		if err := f.ledger.Donate(context.Background(), pairAB, bob, units(bucketTopUp)); err != nil {
			t.Fatalf("donate: %v", err)
		}
	}
	return f
}

// payFees credits fees for the (A, B) bucket: the paired token B moves from
// bob into the vault.
func payFees(t *testing.T, f *fixture, amount int64) {
	t.Helper()
	f.bank.Mint(tokenB, bob, units(amount))
	// tokenA is the canonical first token of (A, B); its bucket key is
	// (B, A) with fees denominated in A. For the (A, B) bucket, credit
	// directly the way the settlement engine does.
	received, err := f.bank.Transfer(context.Background(), tokenB, bob, vault, units(amount))
	if err != nil {
		t.Fatalf("fund vault: %v", err)
	}
	f.ledger.CreditFees(pairAB, received)
}

func TestClaimProRataShare(t *testing.T) {
	// Allocation 100 in a 1000-total bucket, accumulator grown by 50:
	// the claim is 50 * 100/1000 = 5.
	f := feeFixture(t, 100, 900)
	payFees(t, f, 50)

	claimed, err := f.ledger.Claim(context.Background(), pairAB, alice, 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Cmp(units(5)) != 0 {
		t.Fatalf("claim share mismatch: %s", claimed)
	}

	balance, _ := f.bank.Balance(context.Background(), tokenB, alice)
	if balance.Cmp(units(5)) != 0 {
		t.Fatalf("payout is in the paired token: %s", balance)
	}
}

func TestClaimCappedAtClaimablePool(t *testing.T) {
	f := feeFixture(t, 100, 0)
	payFees(t, f, 50)

	// Drain most of the claimable pool by hand to force the cap.
	f.ledger.mu.Lock()
	entry := f.ledger.feeEntry(pairAB)
	entry.Claimable.Set(units(3))
	f.ledger.mu.Unlock()

	claimed, err := f.ledger.Claim(context.Background(), pairAB, alice, 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Cmp(units(3)) != 0 {
		t.Fatalf("claim must cap at the claimable pool: %s", claimed)
	}
}

func TestClaimZeroShareIsNoOp(t *testing.T) {
	f := feeFixture(t, 100, 0)

	claimed, err := f.ledger.Claim(context.Background(), pairAB, alice, 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Sign() != 0 {
		t.Fatalf("nothing accrued, nothing to claim: %s", claimed)
	}
}

func TestClaimAdvancesSnapshotAndBlocksDoubleClaim(t *testing.T) {
	f := feeFixture(t, 100, 0)
	payFees(t, f, 50)

	if _, err := f.ledger.Claim(context.Background(), pairAB, alice, 0); err != nil {
		t.Fatalf("claim: %v", err)
	}

	_, accumulated := f.ledger.FeeState(pairAB)
	snapshot := f.ledger.SnapshotValue(pairAB, 0)
	if snapshot.Cmp(accumulated) != 0 {
		t.Fatalf("snapshot must equal the accumulator after a claim: %s != %s", snapshot, accumulated)
	}

	again, err := f.ledger.Claim(context.Background(), pairAB, alice, 0)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again.Sign() != 0 {
		t.Fatalf("second claim must find nothing: %s", again)
	}
}

func TestAccumulatorNeverDecreases(t *testing.T) {
	f := feeFixture(t, 100, 0)

	previous := big.NewInt(0)
	for i := 0; i < 4; i++ {
		payFees(t, f, 10)
		if _, err := f.ledger.Claim(context.Background(), pairAB, alice, 0); err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		_, accumulated := f.ledger.FeeState(pairAB)
		if accumulated.Cmp(previous) < 0 {
			t.Fatalf("accumulator decreased: %s < %s", accumulated, previous)
		}
		previous = accumulated
	}
}

func TestNewSlotSnapshotExcludesPastFees(t *testing.T) {
	f := feeFixture(t, 100, 0)
	payFees(t, f, 50)

	// Bob deposits after the fees accrued; his snapshot starts at the
	// current accumulator, so he earns nothing from them.
	f.bank.Mint(tokenA, bob, units(100))
	index, err := f.ledger.Deposit(context.Background(), pairAB, bob, units(100))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	claimed, err := f.ledger.Claim(context.Background(), pairAB, bob, index)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Sign() != 0 {
		t.Fatalf("late depositor must not claim earlier fees: %s", claimed)
	}
}

func TestChangeDepositorInheritsFeePosition(t *testing.T) {
	f := feeFixture(t, 100, 0)
	payFees(t, f, 50)

	if err := f.ledger.ChangeDepositor(context.Background(), pairAB, alice, 0, bob); err != nil {
		t.Fatalf("change depositor: %v", err)
	}

	claimed, err := f.ledger.Claim(context.Background(), pairAB, bob, 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Cmp(units(50)) != 0 {
		t.Fatalf("new owner inherits the unclaimed position: %s", claimed)
	}
}

func TestAddFeesCanonicalOrientation(t *testing.T) {
	f := newFixture(t, 18)
	f.bank.Mint(tokenA, bob, units(10))

	// tokenA sorts below tokenB, so it is the canonical first token of the
	// pair regardless of argument order.
	if err := f.ledger.AddFees(context.Background(), tokenB, tokenA, bob, units(10)); err != nil {
		t.Fatalf("add fees: %v", err)
	}

	claimable, accumulated := f.ledger.FeeState(model.Pair{Token: tokenB, Paired: tokenA})
	if claimable.Cmp(units(10)) != 0 || accumulated.Cmp(units(10)) != 0 {
		t.Fatalf("fee state mismatch: claimable=%s accumulated=%s", claimable, accumulated)
	}
}

// reentrantBank calls back into the ledger from inside a transfer.
type reentrantBank struct {
	*token.MemoryBank
	ledger *Ledger
	err    error
}

func (b *reentrantBank) Transfer(ctx context.Context, tok, from, to common.Address, amount *big.Int) (*big.Int, error) {
	if b.ledger != nil {
		_, b.err = b.ledger.Deposit(ctx, pairAB, alice, big.NewInt(1))
	}
	return b.MemoryBank.Transfer(ctx, tok, from, to, amount)
}

func TestReentrantTransferCallbackRejected(t *testing.T) {
	bank := &reentrantBank{MemoryBank: token.NewMemoryBank()}
	registry := token.NewRegistry(nil)
	registry.Set(model.TokenMeta{Address: tokenA.Hex(), Decimals: 18})

	ledger := NewLedger(Config{Bank: bank, Tokens: registry, Vault: vault})
	bank.ledger = ledger
	bank.Mint(tokenA, alice, units(10))

	if _, err := ledger.Deposit(context.Background(), pairAB, alice, units(1)); err != nil {
		t.Fatalf("outer deposit should succeed: %v", err)
	}
	if !errors.Is(bank.err, ErrReentry) {
		t.Fatalf("inner call must be rejected with ErrReentry, got %v", bank.err)
	}
}
