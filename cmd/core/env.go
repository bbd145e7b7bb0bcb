package main

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"liquidityCore/internal/chain"
	"liquidityCore/internal/config"
	"liquidityCore/internal/engine"
	"liquidityCore/internal/history"
	"liquidityCore/internal/history/postgres"
	"liquidityCore/internal/liquidity"
	"liquidityCore/internal/model"
	"liquidityCore/internal/orders"
	"liquidityCore/internal/pool"
	"liquidityCore/internal/registry"
	"liquidityCore/internal/state"
	"liquidityCore/internal/token"
)

// environment wires the full accounting stack for one command invocation.
// Balances, orders, and liquidity live in the state file between runs; the
// reference pool is read live over RPC or from configured static reserves.
type environment struct {
	cfg      config.Config
	logger   *zap.Logger
	bank     *token.MemoryBank
	tokens   *token.Registry
	adapter  *pool.Adapter
	ledger   *liquidity.Ledger
	orders   *orders.Ledger
	recorder *history.Recorder
	engine   *engine.Engine
	store    *state.FileStore

	closers []func()
}

func buildEnvironment(ctx context.Context, cmd *cobra.Command) (*environment, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	env := &environment{cfg: cfg, logger: logger}
	env.bank = token.NewMemoryBank()
	env.orders = orders.NewLedger()

	var reserves pool.ReserveSource
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		env.closers = append(env.closers, chainClient.Close)

		env.tokens = token.NewRegistry(chainClient)

		source := pool.NewChainSource(chainClient, cfg.MaxRetries, cfg.RetryBackoff, logger)
		for key, value := range cfg.Pools {
			tokenA, tokenB, err := parsePairKey(key)
			if err != nil {
				return nil, fmt.Errorf("pool %q: %w", key, err)
			}
			poolAddr, err := parseAddress(value)
			if err != nil {
				return nil, fmt.Errorf("pool %q: %w", key, err)
			}
			source.RegisterPair(tokenA, tokenB, poolAddr)
		}
		reserves = source
	} else {
		env.tokens = token.NewRegistry(nil)

		source := pool.NewStaticSource()
		for key, value := range cfg.Reserves {
			tokenA, tokenB, err := parsePairKey(key)
			if err != nil {
				return nil, fmt.Errorf("reserves %q: %w", key, err)
			}
			reserveA, reserveB, err := parseReservePair(value)
			if err != nil {
				return nil, fmt.Errorf("reserves %q: %w", key, err)
			}
			source.SetReserves(tokenA, tokenB, reserveA, reserveB)
		}
		reserves = source
	}

	for addr, value := range cfg.Tokens {
		tokenAddr, err := parseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("token %q: %w", addr, err)
		}
		decimals, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("token %q decimals: %w", addr, err)
		}
		env.tokens.Set(model.TokenMeta{Address: tokenAddr.Hex(), Decimals: uint8(decimals)})
	}

	env.adapter = pool.NewAdapter(reserves, env.tokens)

	vault, err := parseAddress(cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	var notify *registry.Fanout
	if cfg.Events != "" {
		notify = registry.NewFanout(logger, registry.NewJsonlSink(cfg.Events))
	}

	env.ledger = liquidity.NewLedger(liquidity.Config{
		Bank:   env.bank,
		Tokens: env.tokens,
		Prices: env.adapter,
		Notify: notify,
		Logger: logger,
		Vault:  vault,
		DecayFee: liquidity.DecayConfig{
			Rate: cfg.DecayRatePpm,
			Cap:  cfg.DecayCapPpm,
		},
	})

	var storage history.Storage
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		env.closers = append(env.closers, store.Close)
		storage = store
	} else {
		storage = history.NewJsonlStorage(cfg.Out)
	}
	env.recorder = history.NewRecorder(storage, logger)

	env.store = &state.FileStore{Path: cfg.StateFile}

	return env, nil
}

// buildEngine finishes the settlement wiring; only the settle command needs
// the custody and pool accounts.
func (env *environment) buildEngine() error {
	custody, err := parseAddress(env.cfg.Custody)
	if err != nil {
		return fmt.Errorf("custody: %w", err)
	}
	poolAccount := common.Address{}
	if env.cfg.PoolAccount != "" {
		poolAccount, err = parseAddress(env.cfg.PoolAccount)
		if err != nil {
			return fmt.Errorf("pool-account: %w", err)
		}
	}

	var venue engine.Venue
	switch env.cfg.Venue {
	case "", "internal":
		venue = engine.VenueInternal
	case "external":
		venue = engine.VenueExternal
	default:
		return fmt.Errorf("unknown venue %q", env.cfg.Venue)
	}
	if venue == engine.VenueExternal && env.cfg.PoolAccount == "" {
		return fmt.Errorf("pool-account is required for the external venue")
	}

	env.engine = engine.New(engine.Config{
		Orders:      env.orders,
		Ledger:      env.ledger,
		Oracle:      env.adapter,
		Bank:        env.bank,
		Tokens:      env.tokens,
		Recorder:    env.recorder,
		Logger:      env.logger,
		Custody:     custody,
		PoolAccount: poolAccount,
		Venue:       venue,
	})
	return nil
}

func (env *environment) close() {
	for i := len(env.closers) - 1; i >= 0; i-- {
		env.closers[i]()
	}
	env.logger.Sync()
}

// loadState restores the persisted snapshot, if any.
func (env *environment) loadState() error {
	snapshot, ok, err := env.store.Load()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return state.Apply(snapshot, env.orders, env.ledger, env.bank)
}

// saveState persists the current snapshot. Called only after every step of
// a command succeeded, so a failed command leaves the previous snapshot in
// place.
func (env *environment) saveState() error {
	return env.store.Save(state.Capture(env.orders, env.ledger, env.bank))
}

func parseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address %q", input)
	}
	return common.HexToAddress(input), nil
}

// parsePairKey splits "tokenA:tokenB" into two addresses.
func parsePairKey(input string) (common.Address, common.Address, error) {
	parts := strings.SplitN(input, ":", 2)
	if len(parts) != 2 {
		return common.Address{}, common.Address{}, fmt.Errorf("expected tokenA:tokenB")
	}
	tokenA, err := parseAddress(parts[0])
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	tokenB, err := parseAddress(parts[1])
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return tokenA, tokenB, nil
}

// parseReservePair splits "reserveA:reserveB" into two native-unit amounts.
func parseReservePair(input string) (*big.Int, *big.Int, error) {
	parts := strings.SplitN(input, ":", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("expected reserveA:reserveB")
	}
	reserveA, err := parseAmount(parts[0])
	if err != nil {
		return nil, nil, err
	}
	reserveB, err := parseAmount(parts[1])
	if err != nil {
		return nil, nil, err
	}
	return reserveA, reserveB, nil
}

// parseAmount reads a non-negative integer amount in native token units.
func parseAmount(input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	amount, ok := new(big.Int).SetString(input, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", input)
	}
	return amount, nil
}

// parsePrice reads a decimal ratio such as "0.95" into an 18-decimal
// fixed-point value.
func parsePrice(input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	ratio, ok := new(big.Rat).SetString(input)
	if !ok || ratio.Sign() < 0 {
		return nil, fmt.Errorf("invalid price %q", input)
	}
	scaled := new(big.Rat).Mul(ratio, new(big.Rat).SetInt64(1_000_000_000_000_000_000))
	return new(big.Int).Quo(scaled.Num(), scaled.Denom()), nil
}
