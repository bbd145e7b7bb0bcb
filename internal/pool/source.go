package pool

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityCore/internal/chain"
	"liquidityCore/internal/model"
)

// ChainSource reads reserves from pair contracts on chain. Each registered
// pair maps to the contract address that custodies both token balances.
type ChainSource struct {
	client       *chain.Client
	logger       *zap.Logger
	maxRetries   int
	retryBackoff time.Duration

	mu    sync.RWMutex
	pairs map[model.Pair]common.Address
}

// NewChainSource builds a chain-backed reserve source.
func NewChainSource(client *chain.Client, maxRetries int, retryBackoff time.Duration, logger *zap.Logger) *ChainSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainSource{
		client:       client,
		logger:       logger,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		pairs:        make(map[model.Pair]common.Address),
	}
}

// RegisterPair maps a token pair to its pool contract address. Both
// orientations of the pair resolve to the same contract.
func (s *ChainSource) RegisterPair(tokenA, tokenB, poolAddr common.Address) {
	s.mu.Lock()
	s.pairs[model.Pair{Token: tokenA, Paired: tokenB}] = poolAddr
	s.pairs[model.Pair{Token: tokenB, Paired: tokenA}] = poolAddr
	s.mu.Unlock()
}

// Reserves returns the pool contract's balances of tokenIn and tokenOut.
func (s *ChainSource) Reserves(ctx context.Context, tokenIn, tokenOut common.Address) (*big.Int, *big.Int, error) {
	s.mu.RLock()
	poolAddr, ok := s.pairs[model.Pair{Token: tokenIn, Paired: tokenOut}]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNoLiquidity
	}

	var reserveIn, reserveOut *big.Int
	err := withRetry(ctx, s.maxRetries, s.retryBackoff, func(ctx context.Context) error {
		var err error
		reserveIn, err = s.client.BalanceOf(ctx, tokenIn, poolAddr)
		if err != nil {
			s.logger.Warn("reserve fetch failed", zap.String("token", tokenIn.Hex()), zap.Error(err))
			return err
		}
		reserveOut, err = s.client.BalanceOf(ctx, tokenOut, poolAddr)
		if err != nil {
			s.logger.Warn("reserve fetch failed", zap.String("token", tokenOut.Hex()), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return reserveIn, reserveOut, nil
}

// StaticSource serves reserves from an in-memory table. Used by tests and by
// the CLI's dry-run mode.
type StaticSource struct {
	mu   sync.RWMutex
	data map[model.Pair][2]*big.Int
}

func NewStaticSource() *StaticSource {
	return &StaticSource{data: make(map[model.Pair][2]*big.Int)}
}

// SetReserves stores native-unit reserves for one orientation of a pair and
// the mirror for the opposite orientation.
func (s *StaticSource) SetReserves(tokenIn, tokenOut common.Address, reserveIn, reserveOut *big.Int) {
	s.mu.Lock()
	s.data[model.Pair{Token: tokenIn, Paired: tokenOut}] = [2]*big.Int{reserveIn, reserveOut}
	s.data[model.Pair{Token: tokenOut, Paired: tokenIn}] = [2]*big.Int{reserveOut, reserveIn}
	s.mu.Unlock()
}

// Reserves returns the stored reserves or ErrNoLiquidity.
func (s *StaticSource) Reserves(_ context.Context, tokenIn, tokenOut common.Address) (*big.Int, *big.Int, error) {
	s.mu.RLock()
	pair, ok := s.data[model.Pair{Token: tokenIn, Paired: tokenOut}]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNoLiquidity
	}
	return new(big.Int).Set(pair[0]), new(big.Int).Set(pair[1]), nil
}

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
