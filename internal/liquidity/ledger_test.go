package liquidity

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"liquidityCore/internal/fixedpoint"
	"liquidityCore/internal/model"
	"liquidityCore/internal/token"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	tokenC = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	vault  = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000002")

	pairAB = model.Pair{Token: tokenA, Paired: tokenB}
)

type stubPrices struct {
	prices map[model.Pair]*big.Int
}

func (s *stubPrices) Spot(_ context.Context, tokenIn, tokenOut common.Address) (*big.Int, error) {
	price, ok := s.prices[model.Pair{Token: tokenIn, Paired: tokenOut}]
	if !ok {
		return nil, fmt.Errorf("no market")
	}
	return new(big.Int).Set(price), nil
}

type fixture struct {
	ledger *Ledger
	bank   *token.MemoryBank
	prices *stubPrices
}

func newFixture(t *testing.T, decimalsA uint8) *fixture {
	t.Helper()

	bank := token.NewMemoryBank()
	registry := token.NewRegistry(nil)
	registry.Set(model.TokenMeta{Address: tokenA.Hex(), Decimals: decimalsA})
	registry.Set(model.TokenMeta{Address: tokenB.Hex(), Decimals: 18})
	registry.Set(model.TokenMeta{Address: tokenC.Hex(), Decimals: 18})

	prices := &stubPrices{prices: make(map[model.Pair]*big.Int)}

	ledger := NewLedger(Config{
		Bank:   bank,
		Tokens: registry,
		Prices: prices,
		Vault:  vault,
	})
	return &fixture{ledger: ledger, bank: bank, prices: prices}
}

func TestDepositNormalizesSixDecimals(t *testing.T) {
	f := newFixture(t, 6)
	f.bank.Mint(tokenA, alice, big.NewInt(1000))

	index, err := f.ledger.Deposit(context.Background(), pairAB, alice, big.NewInt(1000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	slot, err := f.ledger.Slot(pairAB, index)
	if err != nil {
		t.Fatalf("slot: %v", err)
	}
	want, _ := new(big.Int).SetString("1000000000000000", 10) // 1000 * 10^12
	if slot.Allocation.Cmp(want) != 0 {
		t.Fatalf("allocation mismatch: %s != %s", slot.Allocation, want)
	}
	if f.ledger.Available(pairAB).Cmp(want) != 0 {
		t.Fatalf("bucket total mismatch: %s", f.ledger.Available(pairAB))
	}
}

func TestDepositMeasuresReceivedAmount(t *testing.T) {
	f := newFixture(t, 18)
	f.bank.Mint(tokenA, alice, units(100))
	f.bank.SetTransferTax(tokenA, 20_000) // 2%

	index, err := f.ledger.Deposit(context.Background(), pairAB, alice, units(100))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}

	slot, _ := f.ledger.Slot(pairAB, index)
	if slot.Allocation.Cmp(units(98)) != 0 {
		t.Fatalf("allocation should be the taxed amount: %s", slot.Allocation)
	}
}

func TestWithdrawPrimaryOnly(t *testing.T) {
	f := newFixture(t, 18)
	f.bank.Mint(tokenA, alice, units(100))
	index, _ := f.ledger.Deposit(context.Background(), pairAB, alice, units(100))

	if err := f.ledger.Withdraw(context.Background(), pairAB, alice, index, units(40), common.Address{}, nil); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	slot, _ := f.ledger.Slot(pairAB, index)
	if slot.Allocation.Cmp(units(60)) != 0 {
		t.Fatalf("allocation after withdraw: %s", slot.Allocation)
	}
	balance, _ := f.bank.Balance(context.Background(), tokenA, alice)
	if balance.Cmp(units(40)) != 0 {
		t.Fatalf("payout mismatch: %s", balance)
	}
}

func TestWithdrawRejectsNonDepositor(t *testing.T) {
	f := newFixture(t, 18)
	f.bank.Mint(tokenA, alice, units(10))
	index, _ := f.ledger.Deposit(context.Background(), pairAB, alice, units(10))

	err := f.ledger.Withdraw(context.Background(), pairAB, bob, index, units(1), common.Address{}, nil)
	if !errors.Is(err, ErrNotDepositor) {
		t.Fatalf("expected ErrNotDepositor, got %v", err)
	}
}

func TestWithdrawRejectsOverAllocation(t *testing.T) {
	f := newFixture(t, 18)
	f.bank.Mint(tokenA, alice, units(10))
	index, _ := f.ledger.Deposit(context.Background(), pairAB, alice, units(10))

	err := f.ledger.Withdraw(context.Background(), pairAB, alice, index, units(11), common.Address{}, nil)
	if !errors.Is(err, ErrInsufficientAllocation) {
		t.Fatalf("expected ErrInsufficientAllocation, got %v", err)
	}

	slot, _ := f.ledger.Slot(pairAB, index)
	if slot.Allocation.Cmp(units(10)) != 0 {
		t.Fatalf("allocation must be unchanged: %s", slot.Allocation)
	}
}

func TestWithdrawCompensationNoMarketRefusedBeforeTransfer(t *testing.T) {
	f := newFixture(t, 18)
	f.bank.Mint(tokenA, alice, units(10))
	index, _ := f.ledger.Deposit(context.Background(), pairAB, alice, units(10))

	err := f.ledger.Withdraw(context.Background(), pairAB, alice, index, units(1), tokenC, units(1))
	if !errors.Is(err, ErrNoMarket) {
		t.Fatalf("expected ErrNoMarket, got %v", err)
	}

	slot, _ := f.ledger.Slot(pairAB, index)
	if slot.Allocation.Cmp(units(10)) != 0 {
		t.Fatalf("allocation must be unchanged: %s", slot.Allocation)
	}
	balance, _ := f.bank.Balance(context.Background(), tokenA, alice)
	if balance.Sign() != 0 {
		t.Fatalf("no transfer may happen before the refusal: %s", balance)
	}
}

func TestWithdrawWithCompensation(t *testing.T) {
	f := newFixture(t, 18)
	f.bank.Mint(tokenA, alice, units(100))
	f.bank.Mint(tokenC, vault, units(50))
	index, _ := f.ledger.Deposit(context.Background(), pairAB, alice, units(100))

	// 1 C is worth 2 A.
	f.prices.prices[model.Pair{Token: tokenC, Paired: tokenA}] = new(big.Int).Mul(big.NewInt(2), fixedpoint.One)

	if err := f.ledger.Withdraw(context.Background(), pairAB, alice, index, units(10), tokenC, units(5)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	// Deducted: 10 primary + 5*2 equivalent = 20.
	slot, _ := f.ledger.Slot(pairAB, index)
	if slot.Allocation.Cmp(units(80)) != 0 {
		t.Fatalf("allocation after compensated withdraw: %s", slot.Allocation)
	}
	compBalance, _ := f.bank.Balance(context.Background(), tokenC, alice)
	if compBalance.Cmp(units(5)) != 0 {
		t.Fatalf("compensation payout mismatch: %s", compBalance)
	}
}

func TestWithdrawCompensationTransferFailureAbortswhole(t *testing.T) {
	f := newFixture(t, 18)
	f.bank.Mint(tokenA, alice, units(100))
	// Vault holds no tokenC, so the compensation transfer must fail.
	index, _ := f.ledger.Deposit(context.Background(), pairAB, alice, units(100))
	f.prices.prices[model.Pair{Token: tokenC, Paired: tokenA}] = new(big.Int).Set(fixedpoint.One)

	err := f.ledger.Withdraw(context.Background(), pairAB, alice, index, units(10), tokenC, units(5))
	if err == nil {
		t.Fatalf("expected compensation transfer failure")
	}

	slot, _ := f.ledger.Slot(pairAB, index)
	if slot.Allocation.Cmp(units(100)) != 0 {
		t.Fatalf("allocation must not be deducted on a partial transfer pair: %s", slot.Allocation)
	}
}

func TestChangeDepositor(t *testing.T) {
	f := newFixture(t, 18)
	f.bank.Mint(tokenA, alice, units(10))
	index, _ := f.ledger.Deposit(context.Background(), pairAB, alice, units(10))

	if err := f.ledger.ChangeDepositor(context.Background(), pairAB, alice, index, bob); err != nil {
		t.Fatalf("change depositor: %v", err)
	}

	slot, _ := f.ledger.Slot(pairAB, index)
	if slot.Depositor != bob {
		t.Fatalf("depositor not reassigned: %s", slot.Depositor.Hex())
	}
	if slot.Allocation.Cmp(units(10)) != 0 {
		t.Fatalf("allocation must not change on reassignment: %s", slot.Allocation)
	}

	if err := f.ledger.ChangeDepositor(context.Background(), pairAB, alice, index, alice); !errors.Is(err, ErrNotDepositor) {
		t.Fatalf("old depositor must lose control, got %v", err)
	}
}

func TestDonateIncreasesBucketWithoutSlot(t *testing.T) {
	f := newFixture(t, 18)
	f.bank.Mint(tokenA, alice, units(30))
	f.bank.Mint(tokenA, bob, units(5))
	_, _ = f.ledger.Deposit(context.Background(), pairAB, alice, units(30))

	if err := f.ledger.Donate(context.Background(), pairAB, bob, units(5)); err != nil {
		t.Fatalf("donate: %v", err)
	}

	if f.ledger.Available(pairAB).Cmp(units(35)) != 0 {
		t.Fatalf("bucket total after donation: %s", f.ledger.Available(pairAB))
	}
	if got := f.ledger.SlotCount(pairAB); got != 1 {
		t.Fatalf("donation must not create a slot: %d", got)
	}
}

func TestBucketTotalEqualsSlotsPlusDonations(t *testing.T) {
	f := newFixture(t, 18)
	f.bank.Mint(tokenA, alice, units(100))
	f.bank.Mint(tokenA, bob, units(100))

	i0, _ := f.ledger.Deposit(context.Background(), pairAB, alice, units(60))
	i1, _ := f.ledger.Deposit(context.Background(), pairAB, bob, units(25))
	_ = f.ledger.Donate(context.Background(), pairAB, bob, units(15))
	_ = f.ledger.Withdraw(context.Background(), pairAB, alice, i0, units(10), common.Address{}, nil)

	donations := units(15)
	slotSum := big.NewInt(0)
	for _, index := range []int{i0, i1} {
		slot, _ := f.ledger.Slot(pairAB, index)
		slotSum.Add(slotSum, slot.Allocation)
	}
	want := new(big.Int).Add(slotSum, donations)
	if f.ledger.Available(pairAB).Cmp(want) != 0 {
		t.Fatalf("bucket invariant broken: total %s != slots+donations %s", f.ledger.Available(pairAB), want)
	}
}

func TestDecayFeeFormula(t *testing.T) {
	cfg := DecayConfig{Rate: 100, Cap: 1_000} // 100 ppm/hour, 0.1% cap

	if fee := DecayFee(units(1000), time.Hour, cfg); fee.Cmp(new(big.Int).Quo(units(1), big.NewInt(10))) != 0 {
		t.Fatalf("one hour fee mismatch: %s", fee)
	}
	// 20 hours would be 2000 ppm; the cap holds it at 1000 ppm.
	capped := DecayFee(units(1000), 20*time.Hour, cfg)
	if capped.Cmp(units(1)) != 0 {
		t.Fatalf("capped fee mismatch: %s", capped)
	}
	if fee := DecayFee(units(1000), time.Hour, DecayConfig{}); fee.Sign() != 0 {
		t.Fatalf("disabled decay must charge nothing: %s", fee)
	}
}

func TestStateExportRestoreRoundTrip(t *testing.T) {
	f := newFixture(t, 18)
	f.bank.Mint(tokenA, alice, units(100))
	f.bank.Mint(tokenA, bob, units(10))
	_, _ = f.ledger.Deposit(context.Background(), pairAB, alice, units(100))
	if err := f.ledger.AddFees(context.Background(), tokenA, tokenB, bob, units(10)); err != nil {
		t.Fatalf("add fees: %v", err)
	}

	exported := f.ledger.Export()

	restored := NewLedger(Config{Bank: f.bank, Prices: f.prices, Vault: vault})
	if err := restored.Restore(exported); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if restored.Available(pairAB).Cmp(f.ledger.Available(pairAB)) != 0 {
		t.Fatalf("bucket totals diverge after restore")
	}
	feePair := pairAB.Canonical()
	wantClaimable, wantAcc := f.ledger.FeeState(feePair)
	if wantAcc.Sign() == 0 {
		t.Fatalf("fees were not credited")
	}
	gotClaimable, gotAcc := restored.FeeState(feePair)
	if wantClaimable.Cmp(gotClaimable) != 0 || wantAcc.Cmp(gotAcc) != 0 {
		t.Fatalf("fee state diverges after restore")
	}
}

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fixedpoint.One)
}
