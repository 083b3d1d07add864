package utils

import (
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/xdr"
)

// ConvertTokenToDecimal scales a raw on-ledger amount by 10^decimals. The
// result is exact; nothing goes through floating point.
func ConvertTokenToDecimal(raw *big.Int, decimals uint32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// RawString renders a raw amount, "0" for nil.
func RawString(raw *big.Int) string {
	if raw == nil {
		return "0"
	}
	return raw.String()
}

// Int128ToBigInt joins the signed hi and unsigned lo halves of an i128.
func Int128ToBigInt(parts xdr.Int128Parts) *big.Int {
	hi := big.NewInt(int64(parts.Hi))
	lo := new(big.Int)
	lo.SetUint64(uint64(parts.Lo))
	hi.Lsh(hi, 64) // Shift 'hi' 64 bits to the left
	hi.Add(hi, lo) // Add 'lo' to get the full 128-bit integer
	return hi
}
