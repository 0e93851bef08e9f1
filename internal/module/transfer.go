package module

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"aptoswarm/internal/blockchain/aptos"
	"aptoswarm/internal/models"
	"aptoswarm/internal/tokens"
)

// Transfer sends a coin to the task recipient or, when unset, to the wallet's pair address
type Transfer struct{}

func (Transfer) Kind() models.ModuleKind { return models.KindTransfer }

func (Transfer) BuildPayload(ctx context.Context, env *Env) (*Payload, error) {
	coin, err := lookupCoin(env.Task.Params.CoinX)
	if err != nil {
		return nil, err
	}

	recipient := env.Task.Params.Recipient
	if recipient == "" {
		recipient = env.Wallet.PairAddress
	}
	if recipient == "" {
		return nil, preconditionf("no recipient and no pair address")
	}
	recipient, err = aptos.NormalizeAddress(recipient)
	if err != nil {
		return nil, preconditionf("invalid recipient: %v", err)
	}
	if recipient == env.Address {
		return nil, preconditionf("recipient is the sender")
	}

	balance, err := env.Client.CoinBalance(ctx, env.Address, coin.CoinType)
	if err != nil {
		return nil, err
	}

	amount, err := SelectAmount(balance, env.Task.Params.Amount, coin)
	if err != nil {
		return nil, err
	}

	return &Payload{
		Entry: aptos.NewEntryFunction("0x1::aptos_account::transfer_coins",
			[]string{coin.CoinType}, aptos.Address(recipient), aptos.U64(amount)),
		Description: fmt.Sprintf("transfer %s %s to %s", coin.ToDecimal(amount), coin.Symbol, recipient),
	}, nil
}

func lookupCoin(name string) (tokens.Coin, error) {
	coin, err := tokens.Lookup(name)
	if err != nil {
		return coin, preconditionf("%v", err)
	}
	return coin, nil
}

// viewU64s calls a view function returning u64 values
func viewU64s(ctx context.Context, client ChainClient, fn string, typeArgs []string, args ...aptos.Arg) ([]uint64, error) {
	out, err := client.View(ctx, aptos.ViewRequest{
		Function:      fn,
		TypeArguments: typeArgs,
		Arguments:     args,
	})
	if err != nil {
		return nil, err
	}

	values := make([]uint64, 0, len(out))
	for _, raw := range out {
		n, err := aptos.ParseU64(raw)
		if err != nil {
			return nil, fmt.Errorf("view %s: %w", fn, err)
		}
		values = append(values, n)
	}
	return values, nil
}

// viewOptionalAmount calls a view returning option<u64> or option<u128>. None reads as zero.
func viewOptionalAmount(ctx context.Context, client ChainClient, fn string, typeArgs []string, args ...aptos.Arg) (decimal.Decimal, error) {
	out, err := client.View(ctx, aptos.ViewRequest{
		Function:      fn,
		TypeArguments: typeArgs,
		Arguments:     args,
	})
	if err != nil {
		return decimal.Zero, err
	}
	if len(out) == 0 {
		return decimal.Zero, fmt.Errorf("view %s returned nothing", fn)
	}

	var option struct {
		Vec []string `json:"vec"`
	}
	if err := json.Unmarshal(out[0], &option); err != nil {
		return decimal.Zero, fmt.Errorf("view %s: failed to decode option: %w", fn, err)
	}
	if len(option.Vec) == 0 {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(option.Vec[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("view %s: invalid amount %q: %w", fn, option.Vec[0], err)
	}
	return value, nil
}

// expectValues checks that a view returned at least n values
func expectValues(fn string, values []uint64, n int) error {
	if len(values) < n {
		raw, _ := json.Marshal(values)
		return fmt.Errorf("view %s returned %s, expected %d values", fn, raw, n)
	}
	return nil
}
