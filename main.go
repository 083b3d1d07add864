package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamswap/stellar-indexer/api"
	"github.com/streamswap/stellar-indexer/config"
	"github.com/streamswap/stellar-indexer/contracts"
	tx_handlers "github.com/streamswap/stellar-indexer/handlers"
	"github.com/streamswap/stellar-indexer/logging"
	"github.com/streamswap/stellar-indexer/models"
	"github.com/streamswap/stellar-indexer/source"
	"github.com/streamswap/stellar-indexer/store"
)

func main() {
	log := logging.Init(config.LOG_LEVEL, config.LOG_PRETTY)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("source", config.SOURCE).Str("store", config.STORE).Msg("starting stream swap indexer")
	var err error
	if config.SOURCE == "relay" {
		err = runRelay(ctx, log)
	} else {
		err = runIndexer(ctx, log)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("indexer stopped")
	}
	log.Info().Msg("shut down")
}

// runIndexer applies events to the store and serves the read API.
func runIndexer(ctx context.Context, log zerolog.Logger) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	reader, err := newReader(log)
	if err != nil {
		return err
	}
	proc := tx_handlers.NewProcessor(st, reader, logging.Component(log, "processor"),
		tx_handlers.WithFactory(config.FACTORY_CONTRACT))

	srv := &http.Server{
		Addr:              config.HTTP_ADDR,
		Handler:           api.NewServer(st, proc.Resume, logging.Component(log, "api")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", config.HTTP_ADDR).Msg("serving read api")

	var src source.Source
	if config.SOURCE == "kafka" {
		cfg := kafkaConfig()
		if err := cfg.Validate(); err != nil {
			return err
		}
		src = source.NewKafkaSource(cfg, logging.Component(log, "kafka"))
	} else {
		src = source.NewStellarSource(config.RPC_URL, config.NETWORK_PASSPHRASE, logging.Component(log, "stellar"))
	}
	defer src.Close()

	cursor, ok, err := proc.Resume(ctx)
	if err != nil {
		return err
	}
	if !ok {
		cursor = nil
	}
	start, err := startLedger(ctx, cursor)
	if err != nil {
		return err
	}
	return src.Run(ctx, start, proc.Process)
}

// runRelay streams ledgers and publishes decoded events to Kafka without
// touching a store. It always starts from the configured ledger.
func runRelay(ctx context.Context, log zerolog.Logger) error {
	cfg := kafkaConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	relay := source.NewKafkaRelay(cfg)
	defer relay.Close()

	src := source.NewStellarSource(config.RPC_URL, config.NETWORK_PASSPHRASE, logging.Component(log, "stellar"))
	defer src.Close()

	start, err := startLedger(ctx, nil)
	if err != nil {
		return err
	}
	return src.Run(ctx, start, relay.Publish)
}

func openStore(ctx context.Context) (store.Store, error) {
	switch config.STORE {
	case "memory":
		return store.NewMemory(), nil
	case "postgres":
		return store.NewPostgres(ctx, config.DatabaseUrl(), config.DB_MAX_CONN)
	default:
		return nil, fmt.Errorf("unknown STORE %q: options (postgres, memory)", config.STORE)
	}
}

// newReader chains the contract reader: soroban calls, retried, with
// metadata cached in process and optionally in redis.
func newReader(log zerolog.Logger) (contracts.Reader, error) {
	soroban := contracts.NewSorobanReader(models.GetTokenConfig{
		RPCUrl:            config.RPC_URL,
		HorizonUrl:        config.HORIZON_URL,
		NetworkPassphrase: config.NETWORK_PASSPHRASE,
		FlowContract:      config.FLOW_CONTRACT,
		Timeout:           config.RPC_TIMEOUT,
	}, logging.Component(log, "soroban"))
	retrying := contracts.NewRetryReader(soroban, config.RETRY_MAX_ATTEMPTS, logging.Component(log, "retry"))

	if config.REDIS_ADDR == "" {
		return contracts.NewCachedReader(retrying, nil, 0, logging.Component(log, "cache"))
	}
	client := contracts.NewRedisClient(config.REDIS_ADDR, config.REDIS_PASSWORD, config.REDIS_DB)
	return contracts.NewCachedReader(retrying, client, config.METADATA_TTL, logging.Component(log, "cache"))
}

func kafkaConfig() source.KafkaConfig {
	return source.KafkaConfig{
		Brokers: config.KAFKA_BROKERS,
		Topic:   config.KAFKA_TOPIC,
		Group:   config.KAFKA_GROUP,
	}
}

func startLedger(ctx context.Context, cursor *models.Cursor) (uint32, error) {
	return source.StartLedger(cursor, config.START_LEDGER, config.DEPLOYMENT_ENVIRONMENT, func() (uint32, error) {
		return source.LatestLedger(ctx, config.RPC_URL)
	})
}
