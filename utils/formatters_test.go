package utils

import (
	"math/big"
	"testing"

	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
)

func TestConvertTokenToDecimal(t *testing.T) {
	cases := []struct {
		raw      *big.Int
		decimals uint32
		want     string
	}{
		{big.NewInt(12345678), 7, "1.2345678"},
		{big.NewInt(5), 0, "5"},
		{big.NewInt(-250), 2, "-2.5"},
		{nil, 7, "0"},
	}
	for _, c := range cases {
		got := ConvertTokenToDecimal(c.raw, c.decimals)
		assert.Equal(t, c.want, got.String())
	}

	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	assert.Equal(t, "123456789012.345678901234567890", ConvertTokenToDecimal(huge, 18).StringFixed(18))
}

func TestInt128ToBigInt(t *testing.T) {
	assert.Equal(t, "42", Int128ToBigInt(xdr.Int128Parts{Hi: 0, Lo: 42}).String())
	assert.Equal(t, "18446744073709551616", Int128ToBigInt(xdr.Int128Parts{Hi: 1, Lo: 0}).String())
	assert.Equal(t, "-1", Int128ToBigInt(xdr.Int128Parts{Hi: -1, Lo: xdr.Uint64(^uint64(0))}).String())
}

func TestRawString(t *testing.T) {
	assert.Equal(t, "0", RawString(nil))
	assert.Equal(t, "7", RawString(big.NewInt(7)))
}
