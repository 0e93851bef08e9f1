package module

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"aptoswarm/internal/blockchain/aptos"
	"aptoswarm/internal/models"
	"aptoswarm/internal/tokens"
)

const lpDecimals = 6

// pool resolves the coin pair, curve and LP coin of a Liquidswap pool
type pool struct {
	x, y     tokens.Coin
	typeArgs []string
	lp       tokens.Coin
}

func resolvePool(env *Env) (*pool, error) {
	x, err := lookupCoin(env.Task.Params.CoinX)
	if err != nil {
		return nil, err
	}
	y, err := lookupCoin(env.Task.Params.CoinY)
	if err != nil {
		return nil, err
	}
	curve := env.Protocols.LiquidswapCurve
	return &pool{
		x:        x,
		y:        y,
		typeArgs: []string{x.CoinType, y.CoinType, curve},
		lp: tokens.Coin{
			Symbol:   "LP",
			CoinType: fmt.Sprintf("%s<%s, %s, %s>", env.Protocols.LiquidswapLPCoin, x.CoinType, y.CoinType, curve),
			Decimals: lpDecimals,
		},
	}, nil
}

// AddLiquidity deposits a coin pair into a Liquidswap pool at the current reserve ratio.
// With a reverse action it records the LP balance held before the deposit, and in test mode
// also the LP amount the deposit would mint.
type AddLiquidity struct{}

func (AddLiquidity) Kind() models.ModuleKind { return models.KindAddLiquidity }

func (AddLiquidity) BuildPayload(ctx context.Context, env *Env) (*Payload, error) {
	pl, err := resolvePool(env)
	if err != nil {
		return nil, err
	}
	slippage := env.Task.Params.SlippagePercent

	balanceX, err := env.Client.CoinBalance(ctx, env.Address, pl.x.CoinType)
	if err != nil {
		return nil, err
	}
	balanceY, err := env.Client.CoinBalance(ctx, env.Address, pl.y.CoinType)
	if err != nil {
		return nil, err
	}
	lpBalance, err := env.Client.CoinBalance(ctx, env.Address, pl.lp.CoinType)
	if err != nil {
		return nil, err
	}

	amountX, err := SelectAmount(balanceX, env.Task.Params.Amount, pl.x)
	if err != nil {
		return nil, err
	}

	fn := env.Protocols.LiquidswapRouter + "::get_reserves_size"
	reserves, err := viewU64s(ctx, env.Client, fn, pl.typeArgs)
	if err != nil {
		return nil, err
	}
	if err := expectValues(fn, reserves, 2); err != nil {
		return nil, err
	}
	if reserves[0] == 0 || reserves[1] == 0 {
		return nil, preconditionf("pool %s/%s is empty", pl.x.Symbol, pl.y.Symbol)
	}

	amountY := u64(amountX).Mul(u64(reserves[1])).Div(u64(reserves[0])).Truncate(0).BigInt().Uint64()
	if amountY == 0 {
		return nil, preconditionf("%s amount too small for pool ratio", pl.x.Symbol)
	}
	if amountY > balanceY {
		return nil, preconditionf("need %s %s, balance is %s",
			pl.y.ToDecimal(amountY), pl.y.Symbol, pl.y.ToDecimal(balanceY))
	}

	rec := models.ExecutionRecord{InitialBalanceX: lpBalance}
	if env.Task.TestMode && env.Task.ReverseAction {
		rec.Amount, err = estimateMinted(ctx, env, pl, reserves, amountX, amountY)
		if err != nil {
			return nil, err
		}
	}
	env.remember(rec)

	return &Payload{
		Entry: aptos.NewEntryFunction(env.Protocols.LiquidswapScripts+"::add_liquidity", pl.typeArgs,
			aptos.U64(amountX), aptos.U64(minOut(amountX, slippage)),
			aptos.U64(amountY), aptos.U64(minOut(amountY, slippage))),
		Description: fmt.Sprintf("add liquidity %s %s + %s %s",
			pl.x.ToDecimal(amountX), pl.x.Symbol, pl.y.ToDecimal(amountY), pl.y.Symbol),
	}, nil
}

// RemoveLiquidity burns LP coins of a Liquidswap pool. Its virtual form burns exactly the
// LP coins minted by the paired AddLiquidity.
type RemoveLiquidity struct{}

func (RemoveLiquidity) Kind() models.ModuleKind { return models.KindRemoveLiquidity }

func (RemoveLiquidity) BuildPayload(ctx context.Context, env *Env) (*Payload, error) {
	pl, err := resolvePool(env)
	if err != nil {
		return nil, err
	}

	lpBalance, err := env.Client.CoinBalance(ctx, env.Address, pl.lp.CoinType)
	if err != nil {
		return nil, err
	}

	var amount uint64
	if env.Task.Virtual {
		rec, err := env.record()
		if err != nil {
			return nil, err
		}
		switch {
		case env.Task.TestMode:
			amount = rec.Amount
		case lpBalance > rec.InitialBalanceX:
			amount = lpBalance - rec.InitialBalanceX
		}
		if amount == 0 {
			return nil, preconditionf("no LP coins minted by the forward deposit")
		}
	} else {
		amount, err = SelectAmount(lpBalance, env.Task.Params.Amount, pl.lp)
		if err != nil {
			return nil, err
		}
	}

	fn := env.Protocols.LiquidswapRouter + "::get_reserves_for_lp_coins"
	out, err := viewU64s(ctx, env.Client, fn, pl.typeArgs, aptos.U64(amount))
	if err != nil {
		return nil, err
	}
	if err := expectValues(fn, out, 2); err != nil {
		return nil, err
	}
	slippage := env.Task.Params.SlippagePercent

	return &Payload{
		Entry: aptos.NewEntryFunction(env.Protocols.LiquidswapScripts+"::remove_liquidity", pl.typeArgs,
			aptos.U64(amount), aptos.U64(minOut(out[0], slippage)), aptos.U64(minOut(out[1], slippage))),
		Description: fmt.Sprintf("remove %s LP for %s %s + %s %s",
			pl.lp.ToDecimal(amount), pl.x.ToDecimal(out[0]), pl.x.Symbol, pl.y.ToDecimal(out[1]), pl.y.Symbol),
	}, nil
}

// estimateMinted quotes the LP coins a deposit mints: the smaller share of the LP supply
// that either side of the deposit buys at the current reserves
func estimateMinted(ctx context.Context, env *Env, pl *pool, reserves []uint64, amountX, amountY uint64) (uint64, error) {
	supply, err := viewOptionalAmount(ctx, env.Client, "0x1::coin::supply", []string{pl.lp.CoinType})
	if err != nil {
		return 0, err
	}
	if !supply.IsPositive() {
		return 0, preconditionf("pool %s/%s has no LP supply to quote against", pl.x.Symbol, pl.y.Symbol)
	}

	byX := supply.Mul(u64(amountX)).Div(u64(reserves[0]))
	byY := supply.Mul(u64(amountY)).Div(u64(reserves[1]))
	minted := decimal.Min(byX, byY).Truncate(0).BigInt()
	if !minted.IsUint64() {
		return 0, preconditionf("LP quote %s does not fit in u64", minted)
	}
	return minted.Uint64(), nil
}
