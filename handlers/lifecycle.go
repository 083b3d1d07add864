package tx_handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/streamswap/stellar-indexer/contracts"
	"github.com/streamswap/stellar-indexer/ids"
	"github.com/streamswap/stellar-indexer/models"
	"github.com/streamswap/stellar-indexer/store"
	"github.com/streamswap/stellar-indexer/utils"
)

// EnsureUser creates the user on first sight and otherwise returns it as is.
func EnsureUser(ctx context.Context, tx store.Tx, address string) (*models.User, error) {
	user, _, err := store.LoadOrCreate(ctx, tx, address, func() *models.User {
		return models.NewUser(address)
	})
	return user, err
}

// EnsureTransaction creates the event's transaction once; later events of the
// same transaction get the stored record back.
func EnsureTransaction(ctx context.Context, tx store.Tx, ev models.Event) (*models.Transaction, error) {
	t, _, err := store.LoadOrCreate(ctx, tx, ev.TransactionHash, func() *models.Transaction {
		return models.NewTransaction(ev.TransactionHash, ev.LedgerSequence, ev.Timestamp())
	})
	return t, err
}

// ensureToken reads the token's metadata from its contract the first time it
// is seen. Decimals never change afterwards.
func ensureToken(ctx context.Context, tx store.Tx, r contracts.Reader, address string) (*models.Token, error) {
	token, ok, err := store.Load[models.Token](ctx, tx, address)
	if err != nil || ok {
		return token, err
	}
	meta, err := r.TokenMetadata(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("token metadata %s: %w", address, err)
	}
	meta.ContractAddress = address
	token = models.NewToken(meta)
	if err := store.Save(ctx, tx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// loadPool applies the template rule: pool-scoped events from contracts that
// were never created as pools are ignored.
func loadPool(ctx context.Context, tx store.Tx, address string) (*models.Pool, error) {
	pool, ok, err := store.Load[models.Pool](ctx, tx, address)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, skip("unknown pool " + address)
	}
	return pool, nil
}

// boundToken strictly loads a token that must already be bound to pool,
// along with its pool membership.
func boundToken(ctx context.Context, tx store.Tx, pool *models.Pool, address string) (*models.Token, *models.PooledToken, error) {
	if !pool.HasToken(address) {
		return nil, nil, invariant("token %s is not bound to pool %s", address, pool.ID)
	}
	token, err := store.MustLoad[models.Token](ctx, tx, address)
	if err != nil {
		return nil, nil, asInvariant(err)
	}
	pt, err := store.MustLoad[models.PooledToken](ctx, tx, ids.PooledToken(address, pool.ID))
	if err != nil {
		return nil, nil, asInvariant(err)
	}
	return token, pt, nil
}

// asInvariant turns a strict-load miss into an invariant violation.
func asInvariant(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrInvariant, err)
	}
	return err
}

// refreshUserToken replaces the cached balance and net flow with what the
// token contract reports now. Without create, untracked pairs are left alone.
func refreshUserToken(ctx context.Context, tx store.Tx, r contracts.Reader, user string, token *models.Token, ts int64, create bool) error {
	id := ids.UserToken(user, token.ID)
	ut, ok, err := store.Load[models.UserToken](ctx, tx, id)
	if err != nil {
		return err
	}
	if !ok {
		if !create {
			return nil
		}
		ut = models.NewUserToken(id, user, token.ID, ts)
	}

	balance, err := r.Balance(ctx, token.ID, user)
	if err != nil {
		return fmt.Errorf("balance of %s in %s: %w", user, token.ID, err)
	}
	netFlow, err := r.NetFlow(ctx, token.ID, user)
	if err != nil {
		return fmt.Errorf("net flow of %s in %s: %w", user, token.ID, err)
	}

	ut.Balance = utils.ConvertTokenToDecimal(balance, token.Decimals)
	ut.NetFlow = utils.ConvertTokenToDecimal(netFlow, token.Decimals)
	ut.LastAction = ts
	return store.Save(ctx, tx, ut)
}

func saveAll(ctx context.Context, tx store.Tx, entities ...store.Entity) error {
	for _, e := range entities {
		if err := store.Save(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}
