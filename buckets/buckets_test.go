package buckets

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamswap/stellar-indexer/ids"
	"github.com/streamswap/stellar-indexer/models"
	"github.com/streamswap/stellar-indexer/store"
)

func TestIndex(t *testing.T) {
	cases := []struct {
		ts, secs, want int64
	}{
		{0, Day, 0},
		{86399, Day, 0},
		{86400, Day, 1},
		{3599, Hour, 0},
		{3600, Hour, 1},
		{-1, Hour, -1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Index(c.ts, c.secs), "ts=%d secs=%d", c.ts, c.secs)
	}
	assert.Equal(t, int64(86400), Start(Index(100000, Day), Day))
}

func setupPool(t *testing.T, s store.Store) *models.Pool {
	t.Helper()
	ctx := context.Background()
	pool := models.NewPool("CPOOL", 0, 1)
	pool.TokenAddresses = []string{"CTOKA"}
	require.NoError(t, store.Save(ctx, s, pool))

	pt := models.NewPooledToken(ids.PooledToken("CTOKA", pool.ID), pool.ID, "CTOKA")
	pt.Reserve = decimal.NewFromInt(10)
	require.NoError(t, store.Save(ctx, s, pt))
	return pool
}

func TestDayBoundaryCreatesTwoBuckets(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	pool := setupPool(t, s)

	first, err := TouchPoolDay(ctx, s, pool, 86399, Delta{InstantSwaps: 1})
	require.NoError(t, err)
	second, err := TouchPoolDay(ctx, s, pool, 86400, Delta{InstantSwaps: 1})
	require.NoError(t, err)

	assert.Equal(t, "CPOOL-0", first.ID)
	assert.Equal(t, "CPOOL-1", second.ID)
	assert.Equal(t, int64(0), first.Date)
	assert.Equal(t, int64(86400), second.Date)

	days, err := store.List[models.PoolDayData](ctx, s, store.Query{})
	require.NoError(t, err)
	assert.Len(t, days, 2)
	for _, d := range days {
		assert.Equal(t, int64(1), d.InstantSwapCount)
	}
}

func TestSnapshotOverwritesWithinBucket(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	pool := setupPool(t, s)

	require.NoError(t, TouchPool(ctx, s, pool, 100, Delta{ContinuousSets: 1}))

	pt, err := store.MustLoad[models.PooledToken](ctx, s, ids.PooledToken("CTOKA", pool.ID))
	require.NoError(t, err)
	pt.Reserve = decimal.NewFromInt(4)
	pt.Volume = decimal.NewFromInt(6)
	require.NoError(t, store.Save(ctx, s, pt))

	require.NoError(t, TouchPool(ctx, s, pool, 200, Delta{ContinuousSets: 1}))

	hour, err := store.MustLoad[models.PoolHourData](ctx, s, ids.PoolBucket(pool.ID, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), hour.ContinuousSwapSetCount)
	assert.Equal(t, []string{"CTOKA-CPOOL-0"}, hour.Tokens)

	snap, err := store.MustLoad[models.HourlyPooledToken](ctx, s, "CTOKA-CPOOL-0")
	require.NoError(t, err)
	assert.True(t, snap.Reserve.Equal(decimal.NewFromInt(4)))
	assert.True(t, snap.Volume.Equal(decimal.NewFromInt(6)))

	daily, err := store.MustLoad[models.DailyPooledToken](ctx, s, "CTOKA-CPOOL-0")
	require.NoError(t, err)
	assert.True(t, daily.Reserve.Equal(decimal.NewFromInt(4)))
}

func TestMissingPooledTokenFails(t *testing.T) {
	s := store.NewMemory()
	pool := models.NewPool("CPOOL", 0, 1)
	pool.TokenAddresses = []string{"CGHOST"}
	err := TouchPool(context.Background(), s, pool, 0, Delta{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTokenDayVolume(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	token := models.NewToken(models.TokenInfo{ContractAddress: "CTOKA", Decimals: 7})
	token.TradeVolume = decimal.NewFromInt(100)

	// first event of the day added 5
	token.TradeVolume = token.TradeVolume.Add(decimal.NewFromInt(5))
	day, err := TouchToken(ctx, s, token, 90000, Delta{InstantSwaps: 1, Volume: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.True(t, day.OpeningVolume.Equal(decimal.NewFromInt(100)))
	assert.True(t, day.DailyVolumeToken.Equal(decimal.NewFromInt(5)))

	token.TradeVolume = token.TradeVolume.Add(decimal.NewFromInt(7))
	token.TotalLiquidity = decimal.NewFromInt(42)
	day, err = TouchToken(ctx, s, token, 90001, Delta{ContinuousSets: 1, Volume: decimal.NewFromInt(7)})
	require.NoError(t, err)
	assert.True(t, day.DailyVolumeToken.Equal(decimal.NewFromInt(12)))
	assert.True(t, day.TotalLiquidityToken.Equal(decimal.NewFromInt(42)))
	assert.Equal(t, int64(1), day.InstantSwapCount)
	assert.Equal(t, int64(1), day.ContinuousSwapSetCount)
	assert.Equal(t, "CTOKA-1", day.ID)
	assert.Equal(t, int64(86400), day.Date)
}
