package tx_handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamswap/stellar-indexer/contracts"
	"github.com/streamswap/stellar-indexer/metrics"
	"github.com/streamswap/stellar-indexer/models"
	"github.com/streamswap/stellar-indexer/store"
)

var (
	// ErrInvariant marks an event that contradicts state the pool contract
	// guarantees, e.g. a rate change on an edge that was never set.
	ErrInvariant   = errors.New("invariant violation")
	ErrUnknownKind = errors.New("no handler for event kind")

	errSkip = errors.New("skipped")
)

const cursorID = "events"

type handlerFunc func(ctx context.Context, tx store.Tx, r contracts.Reader, ev models.Event) error

// skip reports an event that is intentionally ignored. It still counts as
// processed so the cursor moves past it.
func skip(reason string) error {
	return fmt.Errorf("%w: %s", errSkip, reason)
}

func invariant(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

// Processor applies events one at a time, each inside its own atomic unit.
// It is not safe for concurrent use: events must arrive in log order.
type Processor struct {
	store    store.Store
	reader   contracts.Reader
	log      zerolog.Logger
	factory  string
	handlers map[models.EventKind]handlerFunc
}

type Option func(*Processor)

// WithFactory restricts pool creation to events emitted by factory.
func WithFactory(factory string) Option {
	return func(p *Processor) { p.factory = factory }
}

func NewProcessor(s store.Store, reader contracts.Reader, log zerolog.Logger, opts ...Option) *Processor {
	p := &Processor{store: s, reader: reader, log: log}
	p.handlers = map[models.EventKind]handlerFunc{
		models.EventPoolCreated:           p.handlePoolCreated,
		models.EventTokenBound:            p.handleTokenBound,
		models.EventInstantSwapExecuted:   p.handleInstantSwap,
		models.EventContinuousRateSet:     p.handleContinuousRateSet,
		models.EventContinuousRateChanged: p.handleContinuousRateChanged,
		models.EventLiquidityJoined:       p.handleLiquidityJoined,
		models.EventLiquidityExited:       p.handleLiquidityExited,
		models.EventBalanceAffecting:      p.handleBalanceAffecting,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process applies one event. Contract reads happen before the event's
// transaction opens. Failures scoped to the event are logged and swallowed
// so the pipeline moves on; only an unavailable store or a cancelled
// context is returned.
func (p *Processor) Process(ctx context.Context, ev models.Event) error {
	log := p.log.With().
		Uint32("ledger", ev.LedgerSequence).
		Str("tx", ev.TransactionHash).
		Uint32("log_index", ev.LogIndex).
		Str("kind", string(ev.Kind)).
		Str("contract", ev.ContractAddress).
		Logger()

	handle, ok := p.handlers[ev.Kind]
	if !ok {
		metrics.EventsSkipped.WithLabelValues(string(ev.Kind), "unknown_kind").Inc()
		log.Warn().Err(ErrUnknownKind).Msg("dropping event")
		return nil
	}

	if err := ev.Validate(); err != nil {
		metrics.EventsFailed.WithLabelValues(string(ev.Kind)).Inc()
		log.Error().Err(err).Msg("dropping malformed event")
		return nil
	}

	tracked, err := p.tracked(ctx, ev)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) || ctx.Err() != nil {
			return fmt.Errorf("process %s: %w", ev.ID(), err)
		}
		metrics.EventsFailed.WithLabelValues(string(ev.Kind)).Inc()
		log.Error().Err(err).Msg("tracking lookup failed")
		return nil
	}
	if !tracked {
		metrics.EventsSkipped.WithLabelValues(string(ev.Kind), "untracked").Inc()
		return nil
	}

	start := time.Now()
	_, seen, err := p.store.Get(ctx, models.KindProcessedEvent, ev.ID())
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) || ctx.Err() != nil {
			return fmt.Errorf("process %s: %w", ev.ID(), err)
		}
		metrics.EventsFailed.WithLabelValues(string(ev.Kind)).Inc()
		log.Error().Err(err).Msg("replay lookup failed")
		return nil
	}
	if seen {
		metrics.EventsSkipped.WithLabelValues(string(ev.Kind), "duplicate").Inc()
		log.Debug().Msg("event already applied")
		return nil
	}

	reader, err := p.prefetch(ctx, ev)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) || ctx.Err() != nil {
			return fmt.Errorf("process %s: %w", ev.ID(), err)
		}
		metrics.EventsFailed.WithLabelValues(string(ev.Kind)).Inc()
		log.Error().Err(err).Msg("contract reads failed")
		return nil
	}

	var skipped error
	duplicate := false
	err = p.store.Atomic(ctx, func(tx store.Tx) error {
		_, seen, err := store.Load[models.ProcessedEvent](ctx, tx, ev.ID())
		if err != nil {
			return err
		}
		if seen {
			duplicate = true
			return nil
		}

		if err := handle(ctx, tx, reader, ev); err != nil {
			if !errors.Is(err, errSkip) {
				return err
			}
			skipped = err
		}

		if err := store.Save(ctx, tx, &models.ProcessedEvent{ID: ev.ID(), Ledger: ev.LedgerSequence, Kind: string(ev.Kind)}); err != nil {
			return err
		}
		return store.Save(ctx, tx, &models.Cursor{
			ID:       cursorID,
			Ledger:   ev.LedgerSequence,
			TxHash:   ev.TransactionHash,
			LogIndex: ev.LogIndex,
		})
	})

	switch {
	case err == nil && duplicate:
		metrics.EventsSkipped.WithLabelValues(string(ev.Kind), "duplicate").Inc()
		log.Debug().Msg("event already applied")
	case err == nil && skipped != nil:
		metrics.EventsSkipped.WithLabelValues(string(ev.Kind), "ignored").Inc()
		log.Debug().Err(skipped).Msg("event ignored")
	case err == nil:
		metrics.EventsProcessed.WithLabelValues(string(ev.Kind)).Inc()
		metrics.ProcessingDuration.WithLabelValues(string(ev.Kind)).Observe(time.Since(start).Seconds())
		metrics.LastLedger.Set(float64(ev.LedgerSequence))
	case errors.Is(err, store.ErrUnavailable) || ctx.Err() != nil:
		return fmt.Errorf("process %s: %w", ev.ID(), err)
	default:
		metrics.EventsFailed.WithLabelValues(string(ev.Kind)).Inc()
		log.Error().Err(err).Interface("event", ev).Msg("event rolled back")
	}
	return nil
}

// tracked filters out, before any write, events of contracts the indexer
// does not follow: pool-scoped events of contracts that never became pools
// and token events of tokens never bound to a pool. Most of the network's
// token traffic ends here.
func (p *Processor) tracked(ctx context.Context, ev models.Event) (bool, error) {
	var kind string
	switch ev.Kind {
	case models.EventPoolCreated:
		return true, nil
	case models.EventBalanceAffecting:
		kind = models.KindToken
	default:
		kind = models.KindPool
	}
	_, ok, err := p.store.Get(ctx, kind, ev.ContractAddress)
	return ok, err
}

// Resume returns the position of the last committed event.
func (p *Processor) Resume(ctx context.Context) (*models.Cursor, bool, error) {
	return store.Load[models.Cursor](ctx, p.store, cursorID)
}
