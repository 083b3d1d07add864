package tx_handlers

import (
	"context"

	"github.com/streamswap/stellar-indexer/buckets"
	"github.com/streamswap/stellar-indexer/contracts"
	"github.com/streamswap/stellar-indexer/ids"
	"github.com/streamswap/stellar-indexer/models"
	"github.com/streamswap/stellar-indexer/store"
)

func (p *Processor) handlePoolCreated(ctx context.Context, tx store.Tx, _ contracts.Reader, ev models.Event) error {
	if p.factory != "" && ev.ContractAddress != p.factory {
		return skip("pool created by foreign factory " + ev.ContractAddress)
	}
	params := ev.PoolCreated

	factory, _, err := store.LoadOrCreate(ctx, tx, ev.ContractAddress, func() *models.Factory {
		return models.NewFactory(ev.ContractAddress)
	})
	if err != nil {
		return err
	}

	_, created, err := store.LoadOrCreate(ctx, tx, params.Pool, func() *models.Pool {
		return models.NewPool(params.Pool, ev.Timestamp(), ev.LedgerSequence)
	})
	if err != nil || !created {
		return err
	}

	factory.PoolCount++
	return store.Save(ctx, tx, factory)
}

func (p *Processor) handleTokenBound(ctx context.Context, tx store.Tx, r contracts.Reader, ev models.Event) error {
	pool, err := loadPool(ctx, tx, ev.ContractAddress)
	if err != nil {
		return err
	}
	address := ev.TokenBound.Token

	if _, err := ensureToken(ctx, tx, r, address); err != nil {
		return err
	}

	_, _, err = store.LoadOrCreate(ctx, tx, ids.PooledToken(address, pool.ID), func() *models.PooledToken {
		return models.NewPooledToken(ids.PooledToken(address, pool.ID), pool.ID, address)
	})
	if err != nil {
		return err
	}

	if !pool.HasToken(address) {
		pool.TokenAddresses = append(pool.TokenAddresses, address)
		if err := store.Save(ctx, tx, pool); err != nil {
			return err
		}
	}

	return buckets.TouchPool(ctx, tx, pool, ev.Timestamp(), buckets.Delta{})
}
