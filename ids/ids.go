// Package ids derives the store keys of every entity kind.
//
// Composite keys join their parts in a fixed semantic order, never sorted,
// so (tokenIn, tokenOut) and (tokenOut, tokenIn) name different edges. Stellar
// strkeys and hex hashes never contain the separator.
package ids

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/streamswap/stellar-indexer/models"
)

const separator = "-"

// arity is the number of fields each kind's key is built from.
var arity = map[string]int{
	models.KindFactory:           1,
	models.KindPool:              1,
	models.KindToken:             1,
	models.KindUser:              1,
	models.KindTransaction:       1,
	models.KindCursor:            1,
	models.KindProcessedEvent:    2,
	models.KindPooledToken:       2,
	models.KindUserToken:         2,
	models.KindInstantSwap:       2,
	models.KindLiquidityProvider: 2,
	models.KindPoolDayData:       2,
	models.KindPoolHourData:      2,
	models.KindTokenDayData:      2,
	models.KindDailyPooledToken:  3,
	models.KindHourlyPooledToken: 3,
	models.KindContinuousSwap:    4,
}

// Resolve builds the key of an entity of the given kind from its identifying
// fields, in the order the kind defines. Simple kinds use their natural id.
func Resolve(kind string, fields ...string) (string, error) {
	n, ok := arity[kind]
	if !ok {
		return "", fmt.Errorf("ids: unknown kind %q", kind)
	}
	if len(fields) != n {
		return "", fmt.Errorf("ids: %s key takes %d fields, got %d", kind, n, len(fields))
	}
	for i, f := range fields {
		if f == "" {
			return "", fmt.Errorf("ids: %s key field %d is empty", kind, i)
		}
	}
	return join(fields...), nil
}

func join(parts ...string) string {
	return strings.Join(parts, separator)
}

func PooledToken(token, pool string) string {
	return join(token, pool)
}

func UserToken(user, token string) string {
	return join(user, token)
}

func InstantSwap(txHash string, logIndex uint32) string {
	return join(txHash, strconv.FormatUint(uint64(logIndex), 10))
}

// Event keys the replay marker; it matches InstantSwap by construction.
func Event(txHash string, logIndex uint32) string {
	return InstantSwap(txHash, logIndex)
}

// ContinuousSwap keys the directed streaming edge.
func ContinuousSwap(user, pool, tokenIn, tokenOut string) string {
	return join(user, pool, tokenIn, tokenOut)
}

func LiquidityProvider(user, pool string) string {
	return join(user, pool)
}

func PoolBucket(pool string, index int64) string {
	return join(pool, strconv.FormatInt(index, 10))
}

func PooledTokenBucket(token, pool string, index int64) string {
	return join(token, pool, strconv.FormatInt(index, 10))
}

func TokenBucket(token string, index int64) string {
	return join(token, strconv.FormatInt(index, 10))
}
