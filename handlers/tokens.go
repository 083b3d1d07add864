package tx_handlers

import (
	"context"

	"github.com/streamswap/stellar-indexer/contracts"
	"github.com/streamswap/stellar-indexer/models"
	"github.com/streamswap/stellar-indexer/store"
)

// handleBalanceAffecting refreshes the cached balance of every listed account
// that already tracks the emitting token.
func (p *Processor) handleBalanceAffecting(ctx context.Context, tx store.Tx, r contracts.Reader, ev models.Event) error {
	token, ok, err := store.Load[models.Token](ctx, tx, ev.ContractAddress)
	if err != nil {
		return err
	}
	if !ok {
		return skip("untracked token " + ev.ContractAddress)
	}

	seen := make(map[string]bool, len(ev.BalanceAffecting.Accounts))
	for _, account := range ev.BalanceAffecting.Accounts {
		if account == "" || seen[account] {
			continue
		}
		seen[account] = true
		if err := refreshUserToken(ctx, tx, r, account, token, ev.Timestamp(), false); err != nil {
			return err
		}
	}
	return nil
}
