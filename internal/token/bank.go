// Package token provides the transfer and metadata surfaces the ledger
// settles through. Transfers are always verified by before/after balance
// difference so tokens that tax transfers or fail silently are tolerated.
package token

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Bank moves token balances between accounts. Amounts are native units.
// Transfer returns the amount the recipient actually received, which may be
// less than requested for fee-on-transfer tokens.
type Bank interface {
	Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) (*big.Int, error)
	Balance(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// MemoryBank is an in-process Bank keyed by token and owner. A per-token
// transfer tax (parts per million) can be set to exercise fee-on-transfer
// behavior in tests and simulations.
type MemoryBank struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]*big.Int
	taxPpm   map[common.Address]int64
}

func NewMemoryBank() *MemoryBank {
	return &MemoryBank{
		balances: make(map[common.Address]map[common.Address]*big.Int),
		taxPpm:   make(map[common.Address]int64),
	}
}

// Mint credits an owner without a counterparty. Test and bootstrap helper.
func (b *MemoryBank) Mint(token, owner common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(token, owner, amount)
}

// SetTransferTax configures a proportional tax withheld from every transfer
// of the token, in parts per million.
func (b *MemoryBank) SetTransferTax(token common.Address, ppm int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.taxPpm[token] = ppm
}

// Balance returns the owner's holding of the token.
func (b *MemoryBank) Balance(_ context.Context, token, owner common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balance(token, owner)), nil
}

// Transfer debits from and credits to, returning the received amount as
// measured by the recipient's balance difference.
func (b *MemoryBank) Transfer(_ context.Context, token, from, to common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid transfer amount")
	}
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	have := b.balance(token, from)
	if have.Cmp(amount) < 0 {
		return nil, fmt.Errorf("insufficient balance: have %s, need %s", have, amount)
	}

	before := new(big.Int).Set(b.balance(token, to))

	have.Sub(have, amount)
	delivered := new(big.Int).Set(amount)
	if ppm := b.taxPpm[token]; ppm > 0 {
		tax := new(big.Int).Mul(amount, big.NewInt(ppm))
		tax.Quo(tax, big.NewInt(1_000_000))
		delivered.Sub(delivered, tax)
	}
	b.credit(token, to, delivered)

	after := b.balance(token, to)
	return new(big.Int).Sub(after, before), nil
}

// Holding is one owner's balance of one token, for state persistence.
type Holding struct {
	Token  common.Address `json:"token"`
	Owner  common.Address `json:"owner"`
	Amount *big.Int       `json:"amount"`
}

// Export returns every non-zero balance, ordered by token then owner.
func (b *MemoryBank) Export() []Holding {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Holding, 0, len(b.balances))
	for token, owners := range b.balances {
		for owner, amount := range owners {
			if amount.Sign() == 0 {
				continue
			}
			out = append(out, Holding{
				Token:  token,
				Owner:  owner,
				Amount: new(big.Int).Set(amount),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Token.Hex(), out[j].Token.Hex()
		if ti != tj {
			return ti < tj
		}
		return out[i].Owner.Hex() < out[j].Owner.Hex()
	})
	return out
}

// Restore replaces every balance with the exported holdings.
func (b *MemoryBank) Restore(holdings []Holding) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.balances = make(map[common.Address]map[common.Address]*big.Int)
	for _, holding := range holdings {
		if holding.Amount == nil || holding.Amount.Sign() < 0 {
			return fmt.Errorf("invalid holding for %s", holding.Token.Hex())
		}
		b.credit(holding.Token, holding.Owner, holding.Amount)
	}
	return nil
}

func (b *MemoryBank) balance(token, owner common.Address) *big.Int {
	owners, ok := b.balances[token]
	if !ok {
		owners = make(map[common.Address]*big.Int)
		b.balances[token] = owners
	}
	bal, ok := owners[owner]
	if !ok {
		bal = big.NewInt(0)
		owners[owner] = bal
	}
	return bal
}

func (b *MemoryBank) credit(token, owner common.Address, amount *big.Int) {
	bal := b.balance(token, owner)
	bal.Add(bal, amount)
}
