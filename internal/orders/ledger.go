// Package orders holds the order ledger: one entry per limit order, mutated
// only through its state transitions.
package orders

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"liquidityCore/internal/model"
)

var (
	// ErrNotFound reports an unknown order id.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidState reports a transition from a terminal status.
	ErrInvalidState = errors.New("order is not fillable")
)

// Ledger is a keyed store of orders.
type Ledger struct {
	mu     sync.RWMutex
	orders map[string]*model.Order
}

func NewLedger() *Ledger {
	return &Ledger{orders: make(map[string]*model.Order)}
}

// Put records an order. Amount fields left nil are initialized to zero.
func (l *Ledger) Put(order model.Order) error {
	if order.ID == "" {
		return fmt.Errorf("order id is required")
	}
	if order.Pending == nil {
		order.Pending = big.NewInt(0)
	}
	if order.Filled == nil {
		order.Filled = big.NewInt(0)
	}
	if order.Delivered == nil {
		order.Delivered = big.NewInt(0)
	}

	l.mu.Lock()
	l.orders[order.ID] = &order
	l.mu.Unlock()
	return nil
}

// Get returns a copy of the order.
func (l *Ledger) Get(id string) (model.Order, error) {
	l.mu.RLock()
	order, ok := l.orders[id]
	l.mu.RUnlock()
	if !ok {
		return model.Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copyOrder(order), nil
}

// All returns copies of every order, for state persistence.
func (l *Ledger) All() []model.Order {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Order, 0, len(l.orders))
	for _, order := range l.orders {
		out = append(out, copyOrder(order))
	}
	return out
}

// ApplyFill consumes input from the order's pending amount and credits the
// delivered output. Pending is clamped at zero; reaching zero marks the
// order Filled, anything else PartiallyFilled.
func (l *Ledger) ApplyFill(id string, consumedInput, deliveredOutput *big.Int) (model.Order, error) {
	if consumedInput == nil || consumedInput.Sign() <= 0 {
		return model.Order{}, fmt.Errorf("consumed input must be positive")
	}
	if deliveredOutput == nil || deliveredOutput.Sign() < 0 {
		return model.Order{}, fmt.Errorf("delivered output must not be negative")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	order, ok := l.orders[id]
	if !ok {
		return model.Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !order.Status.Fillable() {
		return model.Order{}, fmt.Errorf("%w: %s is %s", ErrInvalidState, id, order.Status)
	}

	order.Pending.Sub(order.Pending, consumedInput)
	if order.Pending.Sign() < 0 {
		order.Pending.SetInt64(0)
	}
	order.Filled.Add(order.Filled, consumedInput)
	order.Delivered.Add(order.Delivered, deliveredOutput)

	if order.Pending.Sign() == 0 {
		order.Status = model.OrderFilled
	} else {
		order.Status = model.OrderPartiallyFilled
	}

	return copyOrder(order), nil
}

// ApplyCancel marks a fillable order Cancelled and zeroes its pending
// amount. Refunding the pending input is the caller's concern.
func (l *Ledger) ApplyCancel(id string) (model.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, ok := l.orders[id]
	if !ok {
		return model.Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !order.Status.Fillable() {
		return model.Order{}, fmt.Errorf("%w: %s is %s", ErrInvalidState, id, order.Status)
	}

	order.Pending.SetInt64(0)
	order.Status = model.OrderCancelled
	return copyOrder(order), nil
}

func copyOrder(order *model.Order) model.Order {
	out := *order
	out.MinPrice = copyInt(order.MinPrice)
	out.MaxPrice = copyInt(order.MaxPrice)
	out.Pending = copyInt(order.Pending)
	out.Filled = copyInt(order.Filled)
	out.Delivered = copyInt(order.Delivered)
	return out
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
