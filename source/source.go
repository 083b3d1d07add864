// Package source feeds decoded pool events to the processor, either straight
// from ledgers or from a Kafka topic another instance relays them to.
package source

import (
	"context"

	"github.com/streamswap/stellar-indexer/models"
)

// Handler consumes one event. A returned error stops the source.
type Handler func(ctx context.Context, ev models.Event) error

// Source delivers events in log order starting at a ledger. Sources that
// track their own position, like a Kafka consumer group, ignore start.
type Source interface {
	Run(ctx context.Context, start uint32, handle Handler) error
	Close() error
}
