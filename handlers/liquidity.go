package tx_handlers

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/streamswap/stellar-indexer/buckets"
	"github.com/streamswap/stellar-indexer/contracts"
	"github.com/streamswap/stellar-indexer/ids"
	"github.com/streamswap/stellar-indexer/models"
	"github.com/streamswap/stellar-indexer/store"
	"github.com/streamswap/stellar-indexer/utils"
)

func (p *Processor) handleLiquidityJoined(ctx context.Context, tx store.Tx, _ contracts.Reader, ev models.Event) error {
	params := ev.LiquidityJoined
	pool, err := loadPool(ctx, tx, ev.ContractAddress)
	if err != nil {
		return err
	}

	lpID := ids.LiquidityProvider(params.Caller, pool.ID)
	lp, created, err := store.LoadOrCreate(ctx, tx, lpID, func() *models.LiquidityProvider {
		return models.NewLiquidityProvider(lpID, params.Caller, pool.ID, ev.Timestamp())
	})
	if err != nil {
		return err
	}
	if created {
		pool.LiquidityProviderCount++
	}
	lp.JoinCount++

	return p.moveLiquidity(ctx, tx, ev, pool, params, func(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) }, lp)
}

func (p *Processor) handleLiquidityExited(ctx context.Context, tx store.Tx, _ contracts.Reader, ev models.Event) error {
	params := ev.LiquidityExited
	pool, err := loadPool(ctx, tx, ev.ContractAddress)
	if err != nil {
		return err
	}
	return p.moveLiquidity(ctx, tx, ev, pool, params, func(a, b decimal.Decimal) decimal.Decimal { return a.Sub(b) })
}

// moveLiquidity applies a deposit or withdrawal to the pooled reserve and the
// token's total liquidity.
func (p *Processor) moveLiquidity(ctx context.Context, tx store.Tx, ev models.Event, pool *models.Pool, params *models.LiquidityParams, apply func(a, b decimal.Decimal) decimal.Decimal, extra ...store.Entity) error {
	if err := nonNegative("amount", params.Amount); err != nil {
		return err
	}
	token, pt, err := boundToken(ctx, tx, pool, params.Token)
	if err != nil {
		return err
	}
	if _, err := EnsureUser(ctx, tx, params.Caller); err != nil {
		return err
	}

	amount := utils.ConvertTokenToDecimal(params.Amount, token.Decimals)
	pt.Reserve = apply(pt.Reserve, amount)
	token.TotalLiquidity = apply(token.TotalLiquidity, amount)

	entities := append([]store.Entity{pt, token, pool}, extra...)
	if err := saveAll(ctx, tx, entities...); err != nil {
		return err
	}

	ts := ev.Timestamp()
	if err := buckets.TouchPool(ctx, tx, pool, ts, buckets.Delta{}); err != nil {
		return err
	}
	_, err = buckets.TouchToken(ctx, tx, token, ts, buckets.Delta{})
	return err
}
