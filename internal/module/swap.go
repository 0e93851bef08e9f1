package module

import (
	"context"
	"fmt"

	"aptoswarm/internal/blockchain/aptos"
	"aptoswarm/internal/models"
	"aptoswarm/internal/tokens"
)

// Swap exchanges coin X for coin Y on Liquidswap. Its virtual twin swaps back exactly
// the amount of Y the forward swap received, or the quoted amount when the forward swap
// only ran in test mode.
type Swap struct{}

func (Swap) Kind() models.ModuleKind { return models.KindSwap }

func (Swap) BuildPayload(ctx context.Context, env *Env) (*Payload, error) {
	p := env.Task.Params
	coinX, err := lookupCoin(p.CoinX)
	if err != nil {
		return nil, err
	}
	coinY, err := lookupCoin(p.CoinY)
	if err != nil {
		return nil, err
	}

	balanceX, err := env.Client.CoinBalance(ctx, env.Address, coinX.CoinType)
	if err != nil {
		return nil, err
	}

	var (
		amount   uint64
		balanceY uint64
	)
	if env.Task.Virtual {
		rec, err := env.record()
		if err != nil {
			return nil, err
		}
		switch {
		case env.Task.TestMode:
			// nothing was swapped, reverse the quote
			amount = rec.Amount
		case rec.InitialBalanceY != nil && balanceX > *rec.InitialBalanceY:
			// the twin's X is the forward task's Y
			amount = balanceX - *rec.InitialBalanceY
		}
		if amount == 0 {
			return nil, preconditionf("no %s received by the forward swap", coinX.Symbol)
		}
	} else {
		balanceY, err = env.Client.CoinBalance(ctx, env.Address, coinY.CoinType)
		if err != nil {
			return nil, err
		}
		amount, err = SelectAmount(balanceX, p.Amount, coinX)
		if err != nil {
			return nil, err
		}
	}

	typeArgs := []string{coinX.CoinType, coinY.CoinType, env.Protocols.LiquidswapCurve}

	fn := env.Protocols.LiquidswapRouter + "::get_amount_out"
	out, err := viewU64s(ctx, env.Client, fn, typeArgs, aptos.U64(amount))
	if err != nil {
		return nil, err
	}
	if err := expectValues(fn, out, 1); err != nil {
		return nil, err
	}
	if out[0] == 0 {
		return nil, preconditionf("pool returns nothing for %s %s", coinX.ToDecimal(amount), coinX.Symbol)
	}
	minAmountOut := minOut(out[0], p.SlippagePercent)

	if !env.Task.Virtual {
		env.remember(models.ExecutionRecord{InitialBalanceX: balanceX, InitialBalanceY: &balanceY, Amount: out[0]})
	}

	return &Payload{
		Entry:       aptos.NewEntryFunction(env.Protocols.LiquidswapScripts+"::swap", typeArgs, aptos.U64(amount), aptos.U64(minAmountOut)),
		Description: describeSwap(coinX, coinY, amount, minAmountOut),
	}, nil
}

func describeSwap(x, y tokens.Coin, in, minOut uint64) string {
	return fmt.Sprintf("swap %s %s for at least %s %s", x.ToDecimal(in), x.Symbol, y.ToDecimal(minOut), y.Symbol)
}
