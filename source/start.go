package source

import (
	"context"
	"errors"

	client "github.com/stellar/go/clients/rpcclient"

	"github.com/streamswap/stellar-indexer/models"
)

// LatestLedger asks the RPC node for the newest ledger it has.
func LatestLedger(ctx context.Context, rpcURL string) (uint32, error) {
	rpcClient := client.NewClient(rpcURL, nil)
	health, err := rpcClient.GetHealth(ctx)
	if err != nil {
		return 0, err
	}
	return health.LatestLedger, nil
}

// StartLedger picks where streaming resumes: the ledger of the last committed
// event when there is one, then the configured ledger, then in testing the
// node's latest ledger. The cursor ledger is replayed in full; events already
// applied in it are absorbed by the replay guard.
func StartLedger(cursor *models.Cursor, configured uint32, environment string, latest func() (uint32, error)) (uint32, error) {
	switch {
	case cursor != nil:
		return cursor.Ledger, nil
	case configured > 0:
		return configured, nil
	case environment == "testing":
		return latest()
	default:
		return 0, errors.New("no cursor and no START_LEDGER: set START_LEDGER or DEPLOYMENT_ENVIRONMENT=testing")
	}
}
