package module

import (
	"context"
	"fmt"
	"math"

	"aptoswarm/internal/blockchain/aptos"
	"aptoswarm/internal/models"
)

// profileArg encodes the Aries profile name as a vector<u8> argument
func profileArg(env *Env) aptos.Arg {
	return aptos.Bytes(env.Protocols.AriesProfile)
}

// Supply deposits a coin into the Aries lending market
type Supply struct{}

func (Supply) Kind() models.ModuleKind { return models.KindSupply }

func (Supply) BuildPayload(ctx context.Context, env *Env) (*Payload, error) {
	coin, err := lookupCoin(env.Task.Params.CoinX)
	if err != nil {
		return nil, err
	}

	balance, err := env.Client.CoinBalance(ctx, env.Address, coin.CoinType)
	if err != nil {
		return nil, err
	}

	amount, err := SelectAmount(balance, env.Task.Params.Amount, coin)
	if err != nil {
		return nil, err
	}

	env.remember(models.ExecutionRecord{InitialBalanceX: balance, Amount: amount})

	return &Payload{
		Entry: aptos.NewEntryFunction(env.Protocols.AriesController+"::deposit",
			[]string{coin.CoinType}, profileArg(env), aptos.U64(amount), aptos.Bool(false)),
		Description: fmt.Sprintf("supply %s %s", coin.ToDecimal(amount), coin.Symbol),
	}, nil
}

// Withdraw takes a coin back out of Aries. The virtual form withdraws exactly what the
// paired Supply deposited; a standalone withdraw in all_balance mode withdraws everything.
type Withdraw struct{}

func (Withdraw) Kind() models.ModuleKind { return models.KindWithdraw }

func (Withdraw) BuildPayload(ctx context.Context, env *Env) (*Payload, error) {
	coin, err := lookupCoin(env.Task.Params.CoinX)
	if err != nil {
		return nil, err
	}

	var amount uint64
	spec := env.Task.Params.Amount

	switch {
	case env.Task.Virtual:
		rec, err := env.record()
		if err != nil {
			return nil, err
		}
		amount = rec.Amount
	case spec.Mode == models.AmountAllBalance:
		// the market caps the withdrawal at the deposit
		amount = math.MaxUint64
	case spec.Mode == models.AmountPercent:
		return nil, preconditionf("percent mode needs a known deposit")
	default:
		amount, err = SelectAmount(math.MaxUint64, spec, coin)
		if err != nil {
			return nil, err
		}
	}
	if amount == 0 {
		return nil, preconditionf("nothing to withdraw")
	}

	desc := fmt.Sprintf("withdraw %s %s", coin.ToDecimal(amount), coin.Symbol)
	if amount == math.MaxUint64 {
		desc = fmt.Sprintf("withdraw all %s", coin.Symbol)
	}

	return &Payload{
		Entry: aptos.NewEntryFunction(env.Protocols.AriesController+"::withdraw",
			[]string{coin.CoinType}, profileArg(env), aptos.U64(amount), aptos.Bool(false)),
		Description: desc,
	}, nil
}
