// Package tokens is a read-only registry of coins known to the protocol modules.
package tokens

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Coin describes a coin type on Aptos
type Coin struct {
	Symbol   string
	CoinType string
	Decimals uint8
}

// ToDecimal converts base units into a human-readable amount
func (c Coin) ToDecimal(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(c.Decimals))
}

// ToBase converts a human-readable amount into base units, truncating extra precision.
// Amounts that do not fit in a u64 are an error.
func (c Coin) ToBase(amount float64) (uint64, error) {
	d := decimal.NewFromFloat(amount).Shift(int32(c.Decimals)).Truncate(0)
	n := d.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("%v %s is out of range", amount, c.Symbol)
	}
	return n.Uint64(), nil
}

const layerZero = "0xf22bede237a07e121b56d91a491eb7bcdfd1f5907926a9e58338f964a01b17fa"

var registry = map[string]Coin{
	"APT":   {Symbol: "APT", CoinType: "0x1::aptos_coin::AptosCoin", Decimals: 8},
	"USDC":  {Symbol: "USDC", CoinType: layerZero + "::asset::USDC", Decimals: 6},
	"USDT":  {Symbol: "USDT", CoinType: layerZero + "::asset::USDT", Decimals: 6},
	"WETH":  {Symbol: "WETH", CoinType: layerZero + "::asset::WETH", Decimals: 6},
	"STAPT": {Symbol: "STAPT", CoinType: "0xd11107bdf0d6d7040c6c0bfbdecb6545191fdf13e8d8d259952f53e1713f61b5::staked_coin::StakedAptos", Decimals: 8},
}

// Lookup resolves a coin by symbol (case-insensitive) or by full coin type
func Lookup(name string) (Coin, error) {
	if c, ok := registry[strings.ToUpper(name)]; ok {
		return c, nil
	}
	for _, c := range registry {
		if c.CoinType == name {
			return c, nil
		}
	}
	return Coin{}, fmt.Errorf("unknown coin %q", name)
}

// APT returns the native coin
func APT() Coin {
	return registry["APT"]
}
