package token

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"liquidityCore/internal/model"
)

func metaFor(addr common.Address, decimals uint8) model.TokenMeta {
	return model.TokenMeta{Address: addr.Hex(), Decimals: decimals}
}

var (
	testToken = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func TestMemoryBankTransfer(t *testing.T) {
	bank := NewMemoryBank()
	bank.Mint(testToken, alice, big.NewInt(1000))

	received, err := bank.Transfer(context.Background(), testToken, alice, bob, big.NewInt(400))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if received.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("received mismatch: %s", received)
	}

	aliceBal, _ := bank.Balance(context.Background(), testToken, alice)
	bobBal, _ := bank.Balance(context.Background(), testToken, bob)
	if aliceBal.Cmp(big.NewInt(600)) != 0 || bobBal.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("balances mismatch: alice=%s bob=%s", aliceBal, bobBal)
	}
}

func TestMemoryBankTransferTax(t *testing.T) {
	bank := NewMemoryBank()
	bank.Mint(testToken, alice, big.NewInt(1_000_000))
	bank.SetTransferTax(testToken, 10_000) // 1%

	received, err := bank.Transfer(context.Background(), testToken, alice, bob, big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if received.Cmp(big.NewInt(990_000)) != 0 {
		t.Fatalf("received should reflect tax: %s", received)
	}
}

func TestMemoryBankInsufficientBalance(t *testing.T) {
	bank := NewMemoryBank()
	bank.Mint(testToken, alice, big.NewInt(10))

	if _, err := bank.Transfer(context.Background(), testToken, alice, bob, big.NewInt(11)); err == nil {
		t.Fatalf("expected insufficient balance error")
	}
}

func TestRegistryDecimals(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Set(metaFor(testToken, 6))

	decimals, err := reg.Decimals(context.Background(), testToken)
	if err != nil {
		t.Fatalf("decimals: %v", err)
	}
	if decimals != 6 {
		t.Fatalf("decimals mismatch: %d", decimals)
	}

	if _, err := reg.Decimals(context.Background(), bob); err == nil {
		t.Fatalf("expected error for unknown token without fetcher")
	}
}
