package module

import (
	"context"
	"fmt"

	"aptoswarm/internal/blockchain/aptos"
	"aptoswarm/internal/models"
	"aptoswarm/internal/tokens"
)

// MinDelegationStake is the smallest add_stake a delegation pool accepts, in octas
const MinDelegationStake uint64 = 11 * 100_000_000

const delegationPool = "0x1::delegation_pool"

func validatorAddress(env *Env) (string, error) {
	pool, err := aptos.NormalizeAddress(env.Task.Params.Validator)
	if err != nil {
		return "", preconditionf("invalid validator: %v", err)
	}
	return pool, nil
}

// Delegate stakes APT into a delegation pool
type Delegate struct{}

func (Delegate) Kind() models.ModuleKind { return models.KindDelegate }

func (Delegate) BuildPayload(ctx context.Context, env *Env) (*Payload, error) {
	pool, err := validatorAddress(env)
	if err != nil {
		return nil, err
	}
	apt := tokens.APT()

	balance, err := env.Client.CoinBalance(ctx, env.Address, apt.CoinType)
	if err != nil {
		return nil, err
	}

	amount, err := SelectAmount(balance, env.Task.Params.Amount, apt)
	if err != nil {
		return nil, err
	}
	if amount < MinDelegationStake {
		return nil, preconditionf("stake %s APT is below the %s APT minimum",
			apt.ToDecimal(amount), apt.ToDecimal(MinDelegationStake))
	}

	env.remember(models.ExecutionRecord{InitialBalanceX: balance, Amount: amount})

	return &Payload{
		Entry:       aptos.NewEntryFunction(delegationPool+"::add_stake", nil, aptos.Address(pool), aptos.U64(amount)),
		Description: fmt.Sprintf("delegate %s APT to %s", apt.ToDecimal(amount), pool),
	}, nil
}

// Unlock starts unstaking from a delegation pool. The virtual form unlocks exactly what the
// paired Delegate staked.
type Unlock struct{}

func (Unlock) Kind() models.ModuleKind { return models.KindUnlock }

func (Unlock) BuildPayload(ctx context.Context, env *Env) (*Payload, error) {
	pool, err := validatorAddress(env)
	if err != nil {
		return nil, err
	}
	apt := tokens.APT()

	var amount uint64
	if env.Task.Virtual {
		rec, err := env.record()
		if err != nil {
			return nil, err
		}
		amount = rec.Amount
	} else {
		fn := delegationPool + "::get_stake"
		stake, err := viewU64s(ctx, env.Client, fn, nil, aptos.Address(pool), aptos.Address(env.Address))
		if err != nil {
			return nil, err
		}
		if err := expectValues(fn, stake, 1); err != nil {
			return nil, err
		}
		amount, err = SelectAmount(stake[0], env.Task.Params.Amount, apt)
		if err != nil {
			return nil, err
		}
	}
	if amount == 0 {
		return nil, preconditionf("nothing to unlock")
	}

	return &Payload{
		Entry:       aptos.NewEntryFunction(delegationPool+"::unlock", nil, aptos.Address(pool), aptos.U64(amount)),
		Description: fmt.Sprintf("unlock %s APT from %s", apt.ToDecimal(amount), pool),
	}, nil
}
