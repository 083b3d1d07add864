package tx_handlers

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/streamswap/stellar-indexer/buckets"
	"github.com/streamswap/stellar-indexer/contracts"
	"github.com/streamswap/stellar-indexer/flow"
	"github.com/streamswap/stellar-indexer/ids"
	"github.com/streamswap/stellar-indexer/models"
	"github.com/streamswap/stellar-indexer/store"
	"github.com/streamswap/stellar-indexer/utils"
)

func nonNegative(name string, v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return invariant("%s must be a non-negative amount, got %s", name, utils.RawString(v))
	}
	return nil
}

// pair loads both sides of a directed trade on pool.
func pair(ctx context.Context, tx store.Tx, pool *models.Pool, tokenIn, tokenOut string) (in, out *models.Token, ptIn, ptOut *models.PooledToken, err error) {
	if tokenIn == tokenOut {
		return nil, nil, nil, nil, invariant("tokenIn and tokenOut are both %s", tokenIn)
	}
	if in, ptIn, err = boundToken(ctx, tx, pool, tokenIn); err != nil {
		return
	}
	out, ptOut, err = boundToken(ctx, tx, pool, tokenOut)
	return
}

func (p *Processor) handleInstantSwap(ctx context.Context, tx store.Tx, r contracts.Reader, ev models.Event) error {
	params := ev.InstantSwap
	pool, err := loadPool(ctx, tx, ev.ContractAddress)
	if err != nil {
		return err
	}
	if err := nonNegative("amountIn", params.AmountIn); err != nil {
		return err
	}
	if err := nonNegative("amountOut", params.AmountOut); err != nil {
		return err
	}
	tokenIn, tokenOut, ptIn, ptOut, err := pair(ctx, tx, pool, params.TokenIn, params.TokenOut)
	if err != nil {
		return err
	}
	if _, err := EnsureTransaction(ctx, tx, ev); err != nil {
		return err
	}
	if _, err := EnsureUser(ctx, tx, params.Caller); err != nil {
		return err
	}

	ts := ev.Timestamp()
	amountIn := utils.ConvertTokenToDecimal(params.AmountIn, tokenIn.Decimals)
	amountOut := utils.ConvertTokenToDecimal(params.AmountOut, tokenOut.Decimals)

	swap := &models.InstantSwap{
		ID:           ids.InstantSwap(ev.TransactionHash, ev.LogIndex),
		Transaction:  ev.TransactionHash,
		Pool:         pool.ID,
		User:         params.Caller,
		TokenIn:      tokenIn.ID,
		TokenOut:     tokenOut.ID,
		AmountIn:     amountIn,
		AmountOut:    amountOut,
		AmountInRaw:  utils.RawString(params.AmountIn),
		AmountOutRaw: utils.RawString(params.AmountOut),
		Timestamp:    ts,
	}

	ptIn.Volume = ptIn.Volume.Add(amountIn)
	ptIn.Reserve = ptIn.Reserve.Add(amountIn)
	ptOut.Volume = ptOut.Volume.Add(amountOut)
	ptOut.Reserve = ptOut.Reserve.Sub(amountOut)

	tokenIn.TradeVolume = tokenIn.TradeVolume.Add(amountIn)
	tokenIn.InstantSwapCount++
	tokenOut.TradeVolume = tokenOut.TradeVolume.Add(amountOut)
	tokenOut.InstantSwapCount++
	pool.InstantSwapCount++

	if err := saveAll(ctx, tx, swap, ptIn, ptOut, tokenIn, tokenOut, pool); err != nil {
		return err
	}

	if err := buckets.TouchPool(ctx, tx, pool, ts, buckets.Delta{InstantSwaps: 1}); err != nil {
		return err
	}
	if _, err := buckets.TouchToken(ctx, tx, tokenIn, ts, buckets.Delta{InstantSwaps: 1, Volume: amountIn}); err != nil {
		return err
	}
	if _, err := buckets.TouchToken(ctx, tx, tokenOut, ts, buckets.Delta{InstantSwaps: 1, Volume: amountOut}); err != nil {
		return err
	}

	if err := refreshUserToken(ctx, tx, r, params.Caller, tokenIn, ts, true); err != nil {
		return err
	}
	return refreshUserToken(ctx, tx, r, params.Caller, tokenOut, ts, true)
}

// handleContinuousRateSet integrates the inbound stream at its previous rate
// up to this event before the new rate replaces it.
func (p *Processor) handleContinuousRateSet(ctx context.Context, tx store.Tx, r contracts.Reader, ev models.Event) error {
	params := ev.ContinuousRateSet
	pool, err := loadPool(ctx, tx, ev.ContractAddress)
	if err != nil {
		return err
	}
	for _, v := range []struct {
		name string
		raw  *big.Int
	}{
		{"newInboundRate", params.NewInboundRate},
		{"minOut", params.MinOut},
		{"maxOut", params.MaxOut},
	} {
		if err := nonNegative(v.name, v.raw); err != nil {
			return err
		}
	}
	tokenIn, tokenOut, ptIn, _, err := pair(ctx, tx, pool, params.TokenIn, params.TokenOut)
	if err != nil {
		return err
	}
	if _, err := EnsureTransaction(ctx, tx, ev); err != nil {
		return err
	}
	if _, err := EnsureUser(ctx, tx, params.Caller); err != nil {
		return err
	}

	ts := ev.Timestamp()
	id := ids.ContinuousSwap(params.Caller, pool.ID, tokenIn.ID, tokenOut.ID)
	cs, _, err := store.LoadOrCreate(ctx, tx, id, func() *models.ContinuousSwap {
		return models.NewContinuousSwap(id, params.Caller, pool.ID, tokenIn.ID, tokenOut.ID, ts)
	})
	if err != nil {
		return err
	}

	credited, err := flow.SetInboundRate(cs,
		utils.ConvertTokenToDecimal(params.NewInboundRate, tokenIn.Decimals),
		utils.ConvertTokenToDecimal(params.MinOut, tokenOut.Decimals),
		utils.ConvertTokenToDecimal(params.MaxOut, tokenOut.Decimals),
		ts, ev.TransactionHash)
	if err != nil {
		return flowError(err)
	}

	ptIn.Volume = ptIn.Volume.Add(credited)
	ptIn.Reserve = ptIn.Reserve.Add(credited)
	tokenIn.TradeVolume = tokenIn.TradeVolume.Add(credited)
	tokenIn.ContinuousSwapSetCount++
	tokenOut.ContinuousSwapSetCount++
	pool.ContinuousSwapSetCount++

	if err := saveAll(ctx, tx, cs, ptIn, tokenIn, tokenOut, pool); err != nil {
		return err
	}

	if err := buckets.TouchPool(ctx, tx, pool, ts, buckets.Delta{ContinuousSets: 1}); err != nil {
		return err
	}
	if _, err := buckets.TouchToken(ctx, tx, tokenIn, ts, buckets.Delta{ContinuousSets: 1, Volume: credited}); err != nil {
		return err
	}
	if _, err := buckets.TouchToken(ctx, tx, tokenOut, ts, buckets.Delta{ContinuousSets: 1}); err != nil {
		return err
	}

	if err := refreshUserToken(ctx, tx, r, params.Caller, tokenIn, ts, true); err != nil {
		return err
	}
	return refreshUserToken(ctx, tx, r, params.Caller, tokenOut, ts, true)
}

// handleContinuousRateChanged settles what the pool delivered at the previous
// outbound rate. The edge must exist: the pool only reports rates for edges a
// user has set.
func (p *Processor) handleContinuousRateChanged(ctx context.Context, tx store.Tx, r contracts.Reader, ev models.Event) error {
	params := ev.ContinuousRateChanged
	pool, err := loadPool(ctx, tx, ev.ContractAddress)
	if err != nil {
		return err
	}
	if err := nonNegative("newOutboundRate", params.NewOutboundRate); err != nil {
		return err
	}

	id := ids.ContinuousSwap(params.Receiver, pool.ID, params.TokenIn, params.TokenOut)
	cs, err := store.MustLoad[models.ContinuousSwap](ctx, tx, id)
	if err != nil {
		return asInvariant(err)
	}
	tokenOut, ptOut, err := boundToken(ctx, tx, pool, params.TokenOut)
	if err != nil {
		return err
	}

	ts := ev.Timestamp()
	delivered, err := flow.ChangeOutboundRate(cs, utils.ConvertTokenToDecimal(params.NewOutboundRate, tokenOut.Decimals), ts)
	if err != nil {
		return flowError(err)
	}

	ptOut.Volume = ptOut.Volume.Add(delivered)
	ptOut.Reserve = ptOut.Reserve.Sub(delivered)
	tokenOut.TradeVolume = tokenOut.TradeVolume.Add(delivered)
	pool.ContinuousRateChangeCount++

	if err := saveAll(ctx, tx, cs, ptOut, tokenOut, pool); err != nil {
		return err
	}

	if err := buckets.TouchPool(ctx, tx, pool, ts, buckets.Delta{}); err != nil {
		return err
	}
	if _, err := buckets.TouchToken(ctx, tx, tokenOut, ts, buckets.Delta{Volume: delivered}); err != nil {
		return err
	}
	return refreshUserToken(ctx, tx, r, params.Receiver, tokenOut, ts, false)
}

func flowError(err error) error {
	if errors.Is(err, flow.ErrTimeRegression) || errors.Is(err, flow.ErrNegativeRate) {
		return fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	return err
}
