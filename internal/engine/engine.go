// Package engine settles batches of limit orders against the reference
// pool price, filling them either from the external pool or from the
// internal liquidity ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityCore/internal/fixedpoint"
	"liquidityCore/internal/history"
	"liquidityCore/internal/liquidity"
	"liquidityCore/internal/model"
	"liquidityCore/internal/orders"
	"liquidityCore/internal/pool"
	"liquidityCore/internal/token"
)

// ErrReentry reports a recursive call into SettleBatch.
var ErrReentry = errors.New("reentrant settlement call")

// Side is the caller-declared direction of a batch.
type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Venue selects the counterparty for fills.
type Venue uint8

const (
	// VenueInternal fills orders from the liquidity ledger's buckets and
	// charges the usage-scaled fee.
	VenueInternal Venue = iota + 1
	// VenueExternal fills orders against the reference pool itself.
	VenueExternal
)

// Usage-scaled fee bounds for internal fills, 18-decimal fixed point.
// The rate is the consumed share of the input bucket times 0.5%, clamped
// to a 0.05% floor and a 50% ceiling.
var (
	usageFeeSlope   = new(big.Int).SetUint64(5_000_000_000_000_000)   // 5e15 = 0.5%
	usageFeeFloor   = new(big.Int).SetUint64(500_000_000_000_000)     // 5e14 = 0.05%
	usageFeeCeiling = new(big.Int).SetUint64(500_000_000_000_000_000) // 5e17 = 50%
)

// Item is one order in a batch with its pre-agreed input amount in native
// input-token units.
type Item struct {
	OrderID  string
	AmountIn *big.Int
}

// Config collects the engine's collaborators.
type Config struct {
	Orders   *orders.Ledger
	Ledger   *liquidity.Ledger
	Oracle   *pool.Adapter
	Bank     token.Bank
	Tokens   *token.Registry
	Recorder *history.Recorder
	Logger   *zap.Logger
	// Custody holds order input funds between submission and settlement.
	Custody common.Address
	// PoolAccount is the external pool's settlement account, used for
	// external fills and the anti-arbitrage holdings check.
	PoolAccount common.Address
	Venue       Venue
}

// Engine drives the per-order Validate, PriceCheck, Fund, Fill, Record
// pipeline over a batch.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	held   atomic.Bool
}

// New builds an engine. A nil logger is replaced with a nop logger.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Venue == 0 {
		cfg.Venue = VenueInternal
	}
	return &Engine{cfg: cfg, logger: logger}
}

// fill carries one successful order fill into the record stage.
type fill struct {
	pair      model.Pair
	consumed  *big.Int
	delivered *big.Int
	price     *big.Int
	reserves  [2]*big.Int
}

// SettleBatch processes items in caller order. Per-order problems skip that
// order and continue; a failure after an order passed validation and price
// check aborts the whole batch with an error, and the caller must discard
// any state derived from it.
func (e *Engine) SettleBatch(ctx context.Context, items []Item, side Side) (*model.FillReport, error) {
	if !e.held.CompareAndSwap(false, true) {
		return nil, ErrReentry
	}
	defer e.held.Store(false)

	report := &model.FillReport{}
	fills := make([]fill, 0, len(items))

	for _, item := range items {
		result, skipReason, err := e.settleOne(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", item.OrderID, err)
		}
		if skipReason != "" {
			e.logger.Info("order skipped",
				zap.String("order", item.OrderID),
				zap.String("side", side.String()),
				zap.String("reason", skipReason))
			report.Skipped = append(report.Skipped, model.Skip{OrderID: item.OrderID, Reason: skipReason})
			continue
		}
		report.Settled = append(report.Settled, item.OrderID)
		fills = append(fills, *result)
	}

	if err := e.record(fills); err != nil {
		return nil, fmt.Errorf("record batch: %w", err)
	}

	return report, nil
}

// settleOne runs one order through the pipeline. A non-empty skip reason
// means the order was passed over; a non-nil error aborts the batch.
func (e *Engine) settleOne(ctx context.Context, item Item) (*fill, string, error) {
	// Validate.
	order, err := e.cfg.Orders.Get(item.OrderID)
	if err != nil {
		return nil, "order not found", nil
	}
	if !order.Status.Fillable() {
		return nil, fmt.Sprintf("order is %s", order.Status), nil
	}
	if order.Pending == nil || order.Pending.Sign() == 0 {
		return nil, "nothing pending", nil
	}
	if item.AmountIn == nil || item.AmountIn.Sign() <= 0 {
		return nil, "input amount must be positive", nil
	}

	decimalsIn, err := e.cfg.Tokens.Decimals(ctx, order.TokenIn)
	if err != nil {
		return nil, "", err
	}
	decimalsOut, err := e.cfg.Tokens.Decimals(ctx, order.TokenOut)
	if err != nil {
		return nil, "", err
	}
	amountNorm, err := fixedpoint.Normalize(item.AmountIn, decimalsIn)
	if err != nil {
		return nil, "", err
	}
	if amountNorm.Cmp(order.Pending) > 0 {
		amountNorm = new(big.Int).Set(order.Pending)
	}

	// PriceCheck.
	quote, err := e.cfg.Oracle.QuoteNormalized(ctx, order.TokenIn, order.TokenOut, amountNorm)
	if errors.Is(err, pool.ErrNoLiquidity) {
		return nil, "no reference liquidity", nil
	}
	if err != nil {
		return nil, "", err
	}
	if order.MinPrice != nil && quote.ImpactPrice.Cmp(order.MinPrice) < 0 {
		return nil, "impact price below order bound", nil
	}
	if order.MaxPrice != nil && quote.ImpactPrice.Cmp(order.MaxPrice) > 0 {
		return nil, "impact price above order bound", nil
	}

	if e.cfg.Venue == VenueExternal {
		return e.fillExternal(ctx, order, amountNorm, quote, decimalsIn, decimalsOut)
	}
	return e.fillInternal(ctx, order, amountNorm, quote, decimalsIn, decimalsOut)
}

// fillInternal funds and fills the order from the liquidity ledger.
func (e *Engine) fillInternal(ctx context.Context, order model.Order, amountNorm *big.Int, quote *pool.Quote, decimalsIn, decimalsOut uint8) (*fill, string, error) {
	inPair := model.Pair{Token: order.TokenIn, Paired: order.TokenOut}
	outPair := inPair.Reverse()

	// Fund: size the usage fee off the input-side bucket.
	available := e.cfg.Ledger.Available(inPair)
	if available.Sign() == 0 {
		return nil, "no internal liquidity for input token", nil
	}
	feeRate := usageFeeRate(amountNorm, available)
	feeAmount := fixedpoint.MulDiv(amountNorm, feeRate, fixedpoint.One)
	netAmount := new(big.Int).Sub(amountNorm, feeAmount)
	if netAmount.Sign() <= 0 {
		return nil, "fee consumes the whole input", nil
	}

	netQuote, err := pool.QuoteReserves(netAmount, quote.ReserveIn, quote.ReserveOut)
	if err != nil {
		return nil, "", err
	}

	if available.Cmp(netAmount) < 0 {
		return nil, "input bucket cannot absorb the fill", nil
	}
	outAvailable := e.cfg.Ledger.Available(outPair)
	if outAvailable.Cmp(netQuote.AmountOut) < 0 {
		return nil, "output bucket cannot fund the fill", nil
	}

	// Anti-arbitrage guard: refuse to settle when the external venue
	// already holds more of the output token than the internal bucket
	// claims to have.
	if quote.ReserveOut.Cmp(outAvailable) > 0 {
		return nil, "external holdings exceed internal bucket", nil
	}

	// Required transfers from here on: failures abort the batch.
	pullAmount, err := fixedpoint.Denormalize(amountNorm, decimalsIn)
	if err != nil {
		return nil, "", err
	}
	if _, err := e.cfg.Bank.Transfer(ctx, order.TokenIn, e.cfg.Custody, e.cfg.Ledger.Vault(), pullAmount); err != nil {
		return nil, "", fmt.Errorf("fund input: %w", err)
	}

	// Fill: deliver output from the vault, measured by balance difference.
	payout, err := fixedpoint.Denormalize(netQuote.AmountOut, decimalsOut)
	if err != nil {
		return nil, "", err
	}
	received, err := e.cfg.Bank.Transfer(ctx, order.TokenOut, e.cfg.Ledger.Vault(), order.Recipient, payout)
	if err != nil {
		return nil, "", fmt.Errorf("deliver output: %w", err)
	}
	delivered, err := fixedpoint.Normalize(received, decimalsOut)
	if err != nil {
		return nil, "", err
	}

	e.cfg.Ledger.Credit(inPair, netAmount)
	if err := e.cfg.Ledger.Debit(outPair, delivered); err != nil {
		return nil, "", err
	}
	e.cfg.Ledger.CreditFees(outPair, feeAmount)

	if _, err := e.cfg.Orders.ApplyFill(order.ID, amountNorm, delivered); err != nil {
		return nil, "", err
	}

	e.logger.Info("order filled",
		zap.String("order", order.ID),
		zap.String("venue", "internal"),
		zap.String("consumed", amountNorm.String()),
		zap.String("delivered", delivered.String()),
		zap.String("fee", feeAmount.String()))

	return &fill{
		pair:      inPair,
		consumed:  amountNorm,
		delivered: delivered,
		price:     quote.ImpactPrice,
		reserves:  [2]*big.Int{quote.ReserveIn, quote.ReserveOut},
	}, "", nil
}

// fillExternal swaps the order input against the reference pool account.
func (e *Engine) fillExternal(ctx context.Context, order model.Order, amountNorm *big.Int, quote *pool.Quote, decimalsIn, decimalsOut uint8) (*fill, string, error) {
	pullAmount, err := fixedpoint.Denormalize(amountNorm, decimalsIn)
	if err != nil {
		return nil, "", err
	}
	if _, err := e.cfg.Bank.Transfer(ctx, order.TokenIn, e.cfg.Custody, e.cfg.PoolAccount, pullAmount); err != nil {
		return nil, "", fmt.Errorf("fund pool swap: %w", err)
	}

	payout, err := fixedpoint.Denormalize(quote.AmountOut, decimalsOut)
	if err != nil {
		return nil, "", err
	}
	received, err := e.cfg.Bank.Transfer(ctx, order.TokenOut, e.cfg.PoolAccount, order.Recipient, payout)
	if err != nil {
		return nil, "", fmt.Errorf("pool delivery: %w", err)
	}
	delivered, err := fixedpoint.Normalize(received, decimalsOut)
	if err != nil {
		return nil, "", err
	}

	if _, err := e.cfg.Orders.ApplyFill(order.ID, amountNorm, delivered); err != nil {
		return nil, "", err
	}

	e.logger.Info("order filled",
		zap.String("order", order.ID),
		zap.String("venue", "external"),
		zap.String("consumed", amountNorm.String()),
		zap.String("delivered", delivered.String()))

	return &fill{
		pair:      model.Pair{Token: order.TokenIn, Paired: order.TokenOut},
		consumed:  amountNorm,
		delivered: delivered,
		price:     quote.ImpactPrice,
		reserves:  [2]*big.Int{quote.ReserveIn, quote.ReserveOut},
	}, "", nil
}

// record appends one history entry per unique pair that had a fill. An
// order's input counts toward the pair's token volume and its delivered
// output toward the paired-token volume.
func (e *Engine) record(fills []fill) error {
	if len(fills) == 0 || e.cfg.Recorder == nil {
		return nil
	}

	order := make([]model.Pair, 0, len(fills))
	byPair := make(map[model.Pair]*history.Observation)
	for _, f := range fills {
		obs, ok := byPair[f.pair]
		if !ok {
			obs = &history.Observation{
				Pair:    f.pair,
				Volume0: big.NewInt(0),
				Volume1: big.NewInt(0),
			}
			byPair[f.pair] = obs
			order = append(order, f.pair)
		}
		obs.Volume0.Add(obs.Volume0, f.consumed)
		obs.Volume1.Add(obs.Volume1, f.delivered)
		// The last fill of the batch wins the price and balance snapshot.
		obs.Price = f.price
		obs.Balance0 = f.reserves[0]
		obs.Balance1 = f.reserves[1]
	}

	observations := make([]history.Observation, 0, len(byPair))
	for _, pair := range order {
		observations = append(observations, *byPair[pair])
	}
	return e.cfg.Recorder.RecordBatch(observations)
}

// usageFeeRate returns the internal fill fee as an 18-decimal fraction of
// the input: linear in the share of the bucket consumed, clamped to the
// floor and ceiling.
func usageFeeRate(amount, available *big.Int) *big.Int {
	usage := fixedpoint.Ratio(amount, available)
	rate := fixedpoint.MulDiv(usage, usageFeeSlope, fixedpoint.One)
	if rate.Cmp(usageFeeFloor) < 0 {
		return new(big.Int).Set(usageFeeFloor)
	}
	if rate.Cmp(usageFeeCeiling) > 0 {
		return new(big.Int).Set(usageFeeCeiling)
	}
	return rate
}
