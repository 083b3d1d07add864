// Package flow integrates piecewise-constant stream rates between events.
//
// Streams only emit on rate changes, so every volume figure is a sum of
// rectangles: the rate that held since the previous event times the elapsed
// seconds. Each update reads the previous rate and timestamp off the edge
// before overwriting them.
package flow

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/streamswap/stellar-indexer/models"
)

var (
	ErrTimeRegression = errors.New("event timestamp precedes edge timestamp")
	ErrNegativeRate   = errors.New("negative flow rate")
)

// Accrued is rate × (to − from). Equal timestamps accrue nothing.
func Accrued(rate decimal.Decimal, from, to int64) (decimal.Decimal, error) {
	if to < from {
		return decimal.Zero, fmt.Errorf("%w: %d < %d", ErrTimeRegression, to, from)
	}
	return rate.Mul(decimal.NewFromInt(to - from)), nil
}

// SetInboundRate applies a rate-set event to the edge and returns the tokenIn
// volume that flowed at the previous rate since the previous set. A zero rate
// still credits the closing interval and deactivates the edge.
func SetInboundRate(cs *models.ContinuousSwap, rateIn, minOut, maxOut decimal.Decimal, ts int64, txHash string) (decimal.Decimal, error) {
	if rateIn.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: rateIn %s on %s", ErrNegativeRate, rateIn, cs.ID)
	}
	prevRate, prevTs := cs.RateIn, cs.Timestamp
	credited, err := Accrued(prevRate, prevTs, ts)
	if err != nil {
		return decimal.Zero, fmt.Errorf("set inbound rate on %s: %w", cs.ID, err)
	}

	cs.RateIn = rateIn
	cs.MinOut = minOut
	cs.MaxOut = maxOut
	cs.Timestamp = ts
	cs.Transaction = txHash
	cs.Active = !rateIn.IsZero()
	return credited, nil
}

// ChangeOutboundRate applies a pool-reported outbound rate change and returns
// the tokenOut amount delivered at the previous rate since the last change.
func ChangeOutboundRate(cs *models.ContinuousSwap, rateOut decimal.Decimal, ts int64) (decimal.Decimal, error) {
	if rateOut.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: rateOut %s on %s", ErrNegativeRate, rateOut, cs.ID)
	}
	prevRate, prevTs := cs.CurrentRateOut, cs.TimestampLastSwap
	delivered, err := Accrued(prevRate, prevTs, ts)
	if err != nil {
		return decimal.Zero, fmt.Errorf("change outbound rate on %s: %w", cs.ID, err)
	}

	cs.TotalOutUntilLastSwap = cs.TotalOutUntilLastSwap.Add(delivered)
	cs.CurrentRateOut = rateOut
	cs.TimestampLastSwap = ts
	cs.Active = !rateOut.IsZero()
	return delivered, nil
}

// BalanceAt is the live balance balance + netFlow × (t − lastAction). Times
// before the snapshot return the snapshot itself.
func BalanceAt(ut *models.UserToken, t int64) decimal.Decimal {
	if t <= ut.LastAction {
		return ut.Balance
	}
	return ut.Balance.Add(ut.NetFlow.Mul(decimal.NewFromInt(t - ut.LastAction)))
}
