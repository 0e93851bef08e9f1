package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	c, err := Lookup("usdc")
	require.NoError(t, err)
	assert.Equal(t, uint8(6), c.Decimals)

	byType, err := Lookup("0x1::aptos_coin::AptosCoin")
	require.NoError(t, err)
	assert.Equal(t, "APT", byType.Symbol)

	_, err = Lookup("DOGE")
	assert.Error(t, err)
}

func TestCoin_Conversions(t *testing.T) {
	apt := APT()

	n, err := apt.ToBase(1.5)
	require.NoError(t, err)
	assert.Equal(t, uint64(150_000_000), n)
	assert.Equal(t, "1.5", apt.ToDecimal(150_000_000).String())

	usdc, _ := Lookup("USDC")
	n, err = usdc.ToBase(1.2345678)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_234_567), n)
}

func TestCoin_ToBaseRejectsOutOfRange(t *testing.T) {
	apt := APT()

	// 2^64 / 10^8 is about 1.8e11 APT
	_, err := apt.ToBase(2e11)
	assert.ErrorContains(t, err, "out of range")

	_, err = apt.ToBase(-1)
	assert.Error(t, err)

	n, err := apt.ToBase(1e11)
	require.NoError(t, err)
	assert.Equal(t, uint64(1e19), n)
}
