package liquidity

import (
	"math/big"
	"time"
)

// DecayConfig parameterizes the holding-time fee charged on withdrawals.
// The fee grows linearly with holding time at Rate until it reaches Cap.
// A zero rate disables the fee.
type DecayConfig struct {
	Rate uint64 // parts per million added per hour held
	Cap  uint64 // maximum fee in parts per million
}

// DecayFee returns the fee on amount for the given holding duration.
func DecayFee(amount *big.Int, held time.Duration, cfg DecayConfig) *big.Int {
	if amount == nil || amount.Sign() <= 0 || cfg.Rate == 0 || held <= 0 {
		return big.NewInt(0)
	}

	seconds := uint64(held / time.Second)
	ppm := new(big.Int).SetUint64(seconds)
	ppm.Mul(ppm, new(big.Int).SetUint64(cfg.Rate))
	ppm.Quo(ppm, big.NewInt(3600))
	if cfg.Cap > 0 && ppm.Cmp(new(big.Int).SetUint64(cfg.Cap)) > 0 {
		ppm.SetUint64(cfg.Cap)
	}

	fee := new(big.Int).Mul(amount, ppm)
	return fee.Quo(fee, big.NewInt(1_000_000))
}
