package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/stellar/go/ingest"
	"github.com/stellar/go/ingest/ledgerbackend"
	"github.com/stellar/go/xdr"

	"github.com/streamswap/stellar-indexer/metrics"
)

// StellarSource walks ledgers from an RPC node and decodes the contract
// events of every successful transaction.
type StellarSource struct {
	backend    ledgerbackend.LedgerBackend
	passphrase string
	log        zerolog.Logger
}

func NewStellarSource(rpcURL, passphrase string, log zerolog.Logger) *StellarSource {
	backend := ledgerbackend.NewRPCLedgerBackend(ledgerbackend.RPCLedgerBackendOptions{
		RPCServerURL: rpcURL,
	})
	return &StellarSource{backend: backend, passphrase: passphrase, log: log}
}

func (s *StellarSource) Run(ctx context.Context, start uint32, handle Handler) error {
	if err := s.backend.PrepareRange(ctx, ledgerbackend.UnboundedRange(start)); err != nil {
		return fmt.Errorf("prepare range from %d: %w", start, err)
	}
	s.log.Info().Uint32("ledger", start).Msg("streaming ledgers")

	for seq := start; ; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ledger, err := s.backend.GetLedger(ctx, seq)
		if err != nil {
			return fmt.Errorf("get ledger %d: %w", seq, err)
		}
		if err := s.processLedger(ctx, ledger, handle); err != nil {
			return err
		}
	}
}

func (s *StellarSource) processLedger(ctx context.Context, ledger xdr.LedgerCloseMeta, handle Handler) error {
	seq := ledger.LedgerSequence()
	txReader, err := ingest.NewLedgerTransactionReaderFromLedgerCloseMeta(s.passphrase, ledger)
	if err != nil {
		return fmt.Errorf("read ledger %d: %w", seq, err)
	}
	defer txReader.Close()

	closeTime := time.Unix(int64(ledger.LedgerHeaderHistoryEntry().Header.ScpValue.CloseTime), 0).UTC()
	for {
		tx, err := txReader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read transaction in ledger %d: %w", seq, err)
		}
		if !tx.Successful() {
			continue
		}
		events, err := tx.GetContractEvents()
		if err != nil {
			// classic transactions carry no soroban meta
			continue
		}
		meta := Meta{Ledger: seq, CloseTime: closeTime, TxHash: tx.Result.TransactionHash.HexString()}
		if err := s.emit(ctx, events, meta, handle); err != nil {
			return err
		}
	}
}

// emit decodes the events of one transaction. The log index is the event's
// position within the transaction.
func (s *StellarSource) emit(ctx context.Context, events []xdr.ContractEvent, meta Meta, handle Handler) error {
	for i, event := range events {
		meta.LogIndex = uint32(i)
		ev, ok, err := DecodeContractEvent(event, meta)
		if err != nil {
			metrics.EventsSkipped.WithLabelValues("undecoded", "malformed").Inc()
			s.log.Debug().Err(err).Msg("skipping contract event")
			continue
		}
		if !ok {
			continue
		}
		if err := handle(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *StellarSource) Close() error {
	return s.backend.Close()
}
