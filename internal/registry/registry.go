// Package registry fans out deposit and slot-change events to external
// observers. Delivery is best effort: a failing sink is logged and counted
// but never blocks or reverses the operation that produced the event.
package registry

import (
	"context"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityCore/internal/model"
)

// Event kinds published by the liquidity ledger.
const (
	EventDeposit         = "deposit"
	EventWithdraw        = "withdraw"
	EventDepositorChange = "depositor_change"
	EventDonation        = "donation"
	EventFeeClaim        = "fee_claim"
)

// Event describes one ledger change.
type Event struct {
	Kind      string         `json:"kind"`
	Pair      model.Pair     `json:"pair"`
	Depositor common.Address `json:"depositor"`
	SlotIndex int            `json:"slot_index"`
	Amount    *big.Int       `json:"amount"`
}

// Sink receives ledger events.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}

// Fanout publishes events to every registered sink.
type Fanout struct {
	sinks    []Sink
	logger   *zap.Logger
	failures atomic.Uint64
}

func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{sinks: sinks, logger: logger}
}

// Publish delivers the event to every sink, swallowing per-sink failures.
// Safe to call on a nil fanout.
func (f *Fanout) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	for _, sink := range f.sinks {
		if err := sink.Notify(ctx, event); err != nil {
			f.failures.Add(1)
			f.logger.Warn("sink notification failed",
				zap.String("kind", event.Kind),
				zap.String("pair", event.Pair.String()),
				zap.Error(err))
		}
	}
}

// Failures returns the count of swallowed sink errors, for monitoring.
func (f *Fanout) Failures() uint64 {
	if f == nil {
		return 0
	}
	return f.failures.Load()
}
