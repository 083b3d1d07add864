// Package contracts performs the read-through calls against token and flow
// contracts: static token metadata on first sight, balances and net flow
// rates on balance-affecting events.
package contracts

import (
	"context"
	"errors"
	"math/big"

	"github.com/streamswap/stellar-indexer/models"
)

var ErrUnexpectedResult = errors.New("unexpected result type")

type Reader interface {
	TokenMetadata(ctx context.Context, token string) (models.TokenInfo, error)
	Balance(ctx context.Context, token, account string) (*big.Int, error)
	// NetFlow is the signed raw per-second flow rate of account in token.
	NetFlow(ctx context.Context, token, account string) (*big.Int, error)
}
