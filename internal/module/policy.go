package module

import (
	"math/big"
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"aptoswarm/internal/models"
	"aptoswarm/internal/tokens"
)

// smallGasThreshold is the simulated gas at or below which the limit is doubled
const smallGasThreshold = 200

// DeriveGasLimit sizes the submission gas limit from the simulated gas usage
func DeriveGasLimit(gasUsed uint64, task *models.Task) uint64 {
	if task.ForcedGasLimit {
		return task.GasLimit
	}
	if gasUsed <= smallGasThreshold {
		return gasUsed * 2
	}
	return gasUsed * 115 / 100
}

// SelectAmount picks the amount to move from balance according to the amount mode.
// Min and Max in spec are whole coin units of coin.
func SelectAmount(balance uint64, spec models.AmountSpec, coin tokens.Coin) (uint64, error) {
	if balance == 0 {
		return 0, preconditionf("%s balance is zero", coin.Symbol)
	}

	var amount uint64

	switch spec.Mode {
	case models.AmountAllBalance:
		amount = balance

	case models.AmountPercent:
		pct := spec.MinPercent
		if spec.MaxPercent > spec.MinPercent {
			pct += rand.Float64() * (spec.MaxPercent - spec.MinPercent)
		}
		amount = u64(balance).
			Mul(decimal.NewFromFloat(pct)).
			Div(decimal.NewFromInt(100)).
			Truncate(0).
			BigInt().Uint64()

	case models.AmountFixed, "":
		lo, err := coin.ToBase(spec.Min)
		if err != nil {
			return 0, preconditionf("invalid min amount: %v", err)
		}
		hi, err := coin.ToBase(spec.Max)
		if err != nil {
			return 0, preconditionf("invalid max amount: %v", err)
		}
		if balance < lo {
			return 0, preconditionf("%s balance %s is below min amount %v",
				coin.Symbol, coin.ToDecimal(balance), spec.Min)
		}
		if hi > balance {
			hi = balance
		}
		amount = lo
		if hi > lo {
			amount += rand.Uint64N(hi - lo + 1)
		}

	default:
		return 0, preconditionf("unknown amount mode %q", spec.Mode)
	}

	if amount == 0 {
		return 0, preconditionf("computed %s amount is zero", coin.Symbol)
	}
	return amount, nil
}

// minOut applies slippage to an expected output amount
func minOut(expected uint64, slippagePercent float64) uint64 {
	keep := decimal.NewFromInt(100).Sub(decimal.NewFromFloat(slippagePercent))
	return u64(expected).Mul(keep).Div(decimal.NewFromInt(100)).Truncate(0).BigInt().Uint64()
}

func u64(n uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
}
