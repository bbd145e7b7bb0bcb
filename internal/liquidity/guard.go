package liquidity

import "sync/atomic"

// entryGuard rejects recursive entry into a mutating call surface. A
// transfer callback that tries to re-invoke the ledger before the current
// call completes fails with ErrReentry instead of observing half-applied
// state.
type entryGuard struct {
	held atomic.Bool
}

func (g *entryGuard) enter() error {
	if !g.held.CompareAndSwap(false, true) {
		return ErrReentry
	}
	return nil
}

func (g *entryGuard) exit() {
	g.held.Store(false)
}
