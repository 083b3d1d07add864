package flow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamswap/stellar-indexer/models"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newEdge(ts int64) *models.ContinuousSwap {
	return models.NewContinuousSwap("u-p-a-b", "u", "p", "a", "b", ts)
}

func TestAccrued(t *testing.T) {
	got, err := Accrued(decimal.RequireFromString("1.5"), 10, 20)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("15")))

	got, err = Accrued(d(7), 20, 20)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = Accrued(d(7), 20, 19)
	assert.ErrorIs(t, err, ErrTimeRegression)
}

func TestOpenThenCloseStream(t *testing.T) {
	cs := newEdge(0)

	credited, err := SetInboundRate(cs, d(5), d(0), d(0), 0, "tx0")
	require.NoError(t, err)
	assert.True(t, credited.IsZero())
	assert.True(t, cs.Active)

	credited, err = SetInboundRate(cs, d(0), d(0), d(0), 100, "tx1")
	require.NoError(t, err)
	assert.True(t, credited.Equal(d(500)), credited.String())
	assert.False(t, cs.Active)
	assert.True(t, cs.RateIn.IsZero())
	assert.Equal(t, int64(100), cs.Timestamp)
	assert.Equal(t, "tx1", cs.Transaction)
}

func TestIntegrationIsSumOfRectangles(t *testing.T) {
	times := []int64{10, 25, 25, 40, 100, 101}
	rates := []int64{3, 0, 8, 2, 9, 0}

	cs := newEdge(times[0])
	total := decimal.Zero
	for i, ts := range times {
		credited, err := SetInboundRate(cs, d(rates[i]), d(0), d(0), ts, "tx")
		require.NoError(t, err)
		total = total.Add(credited)
	}

	want := decimal.Zero
	for i := 0; i+1 < len(times); i++ {
		want = want.Add(d(rates[i] * (times[i+1] - times[i])))
	}
	assert.True(t, total.Equal(want), "got %s want %s", total, want)
}

func TestSameTimestampCreditsNothing(t *testing.T) {
	cs := newEdge(50)
	_, err := SetInboundRate(cs, d(4), d(0), d(0), 50, "tx")
	require.NoError(t, err)
	credited, err := SetInboundRate(cs, d(9), d(0), d(0), 50, "tx")
	require.NoError(t, err)
	assert.True(t, credited.IsZero())
	assert.True(t, cs.RateIn.Equal(d(9)))
}

func TestTimeRegressionIsRejected(t *testing.T) {
	cs := newEdge(50)
	_, err := SetInboundRate(cs, d(4), d(0), d(0), 60, "tx")
	require.NoError(t, err)

	_, err = SetInboundRate(cs, d(1), d(0), d(0), 59, "tx")
	assert.ErrorIs(t, err, ErrTimeRegression)
	assert.True(t, cs.RateIn.Equal(d(4)), "edge must be untouched")

	_, err = ChangeOutboundRate(cs, d(1), 10)
	assert.ErrorIs(t, err, ErrTimeRegression)
}

func TestNegativeRateIsRejected(t *testing.T) {
	cs := newEdge(0)
	_, err := SetInboundRate(cs, d(-1), d(0), d(0), 1, "tx")
	assert.ErrorIs(t, err, ErrNegativeRate)
	_, err = ChangeOutboundRate(cs, d(-1), 1)
	assert.ErrorIs(t, err, ErrNegativeRate)
}

func TestOutboundTotalIsMonotonic(t *testing.T) {
	cs := newEdge(0)
	steps := []struct {
		ts   int64
		rate int64
	}{{0, 2}, {10, 5}, {10, 0}, {30, 1}, {31, 0}}

	prev := cs.TotalOutUntilLastSwap
	for _, s := range steps {
		_, err := ChangeOutboundRate(cs, d(s.rate), s.ts)
		require.NoError(t, err)
		assert.True(t, cs.TotalOutUntilLastSwap.GreaterThanOrEqual(prev))
		assert.Equal(t, s.rate != 0, cs.Active)
		prev = cs.TotalOutUntilLastSwap
	}
	// 2×10 + 5×0 + 0×20 + 1×1
	assert.True(t, cs.TotalOutUntilLastSwap.Equal(d(21)), cs.TotalOutUntilLastSwap.String())
	assert.Equal(t, int64(31), cs.TimestampLastSwap)
}

func TestBalanceAt(t *testing.T) {
	ut := models.NewUserToken("u-t", "u", "t", 1000)
	ut.Balance = d(100)
	ut.NetFlow = d(2)

	assert.True(t, BalanceAt(ut, 1050).Equal(d(200)))
	assert.True(t, BalanceAt(ut, 1000).Equal(d(100)))
	assert.True(t, BalanceAt(ut, 900).Equal(d(100)))

	ut.NetFlow = d(-3)
	assert.True(t, BalanceAt(ut, 1010).Equal(d(70)))
}
