package tx_handlers

import (
	"context"
	"fmt"
	"math/big"

	"github.com/streamswap/stellar-indexer/contracts"
	"github.com/streamswap/stellar-indexer/ids"
	"github.com/streamswap/stellar-indexer/models"
)

// reads holds the contract reads of one event, made before its store
// transaction opens. Anything not fetched up front falls through to next.
type reads struct {
	next     contracts.Reader
	metadata map[string]models.TokenInfo
	balances map[string]*big.Int
	flows    map[string]*big.Int
}

func newReads(next contracts.Reader) *reads {
	return &reads{
		next:     next,
		metadata: make(map[string]models.TokenInfo),
		balances: make(map[string]*big.Int),
		flows:    make(map[string]*big.Int),
	}
}

func holdingKey(token, account string) string {
	return token + "|" + account
}

func (r *reads) TokenMetadata(ctx context.Context, token string) (models.TokenInfo, error) {
	if info, ok := r.metadata[token]; ok {
		return info, nil
	}
	return r.next.TokenMetadata(ctx, token)
}

func (r *reads) Balance(ctx context.Context, token, account string) (*big.Int, error) {
	if v, ok := r.balances[holdingKey(token, account)]; ok {
		return v, nil
	}
	return r.next.Balance(ctx, token, account)
}

func (r *reads) NetFlow(ctx context.Context, token, account string) (*big.Int, error) {
	if v, ok := r.flows[holdingKey(token, account)]; ok {
		return v, nil
	}
	return r.next.NetFlow(ctx, token, account)
}

func (r *reads) fetchMetadata(ctx context.Context, token string) error {
	info, err := r.next.TokenMetadata(ctx, token)
	if err != nil {
		return fmt.Errorf("token metadata %s: %w", token, err)
	}
	r.metadata[token] = info
	return nil
}

func (r *reads) fetchHolding(ctx context.Context, token, account string) error {
	key := holdingKey(token, account)
	if _, ok := r.balances[key]; ok {
		return nil
	}
	balance, err := r.next.Balance(ctx, token, account)
	if err != nil {
		return fmt.Errorf("balance of %s in %s: %w", account, token, err)
	}
	netFlow, err := r.next.NetFlow(ctx, token, account)
	if err != nil {
		return fmt.Errorf("net flow of %s in %s: %w", account, token, err)
	}
	r.balances[key] = balance
	r.flows[key] = netFlow
	return nil
}

// prefetch makes the contract reads ev's handler will need while no store
// transaction is open, so a slow RPC node never holds database locks.
func (p *Processor) prefetch(ctx context.Context, ev models.Event) (*reads, error) {
	r := newReads(p.reader)
	switch ev.Kind {
	case models.EventTokenBound:
		_, known, err := p.store.Get(ctx, models.KindToken, ev.TokenBound.Token)
		if err != nil || known {
			return r, err
		}
		return r, r.fetchMetadata(ctx, ev.TokenBound.Token)
	case models.EventInstantSwapExecuted:
		params := ev.InstantSwap
		if err := r.fetchHolding(ctx, params.TokenIn, params.Caller); err != nil {
			return r, err
		}
		return r, r.fetchHolding(ctx, params.TokenOut, params.Caller)
	case models.EventContinuousRateSet:
		params := ev.ContinuousRateSet
		if err := r.fetchHolding(ctx, params.TokenIn, params.Caller); err != nil {
			return r, err
		}
		return r, r.fetchHolding(ctx, params.TokenOut, params.Caller)
	case models.EventContinuousRateChanged:
		params := ev.ContinuousRateChanged
		return r, p.fetchTracked(ctx, r, params.TokenOut, params.Receiver)
	case models.EventBalanceAffecting:
		for _, account := range ev.BalanceAffecting.Accounts {
			if account == "" {
				continue
			}
			if err := p.fetchTracked(ctx, r, ev.ContractAddress, account); err != nil {
				return r, err
			}
		}
	}
	return r, nil
}

// fetchTracked reads a holding only when the pair is already tracked.
func (p *Processor) fetchTracked(ctx context.Context, r *reads, token, account string) error {
	_, ok, err := p.store.Get(ctx, models.KindUserToken, ids.UserToken(account, token))
	if err != nil || !ok {
		return err
	}
	return r.fetchHolding(ctx, token, account)
}
