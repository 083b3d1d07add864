package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/streamswap/stellar-indexer/models"
)

// relayKey is the message key for every relayed event. A single key keeps the
// whole log on one partition so consumers see it in order.
var relayKey = []byte("events")

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Group   string
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes relayed events. Offsets are committed only after the
// handler returns, so a crash redelivers the event and the replay guard
// absorbs it.
type KafkaSource struct {
	reader messageReader
	log    zerolog.Logger
}

func NewKafkaSource(cfg KafkaConfig, log zerolog.Logger) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.Group,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
	return &KafkaSource{reader: reader, log: log}
}

func (s *KafkaSource) Run(ctx context.Context, _ uint32, handle Handler) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		var ev models.Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			s.log.Error().Err(err).Int64("offset", msg.Offset).Msg("dropping undecodable message")
		} else if err := handle(ctx, ev); err != nil {
			return err
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// relayBatchTimeout bounds how long a synchronous write waits for more
// messages. The relay writes one event per call, so the writer's 1s default
// would cap it near one event per second.
const relayBatchTimeout = 10 * time.Millisecond

// KafkaRelay publishes events instead of applying them. It is the Handler
// of a relay instance that owns the ledger stream.
type KafkaRelay struct {
	writer messageWriter
}

func NewKafkaRelay(cfg KafkaConfig) *KafkaRelay {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: relayBatchTimeout,
	}
	return &KafkaRelay{writer: writer}
}

func (r *KafkaRelay) Publish(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	err = r.writer.WriteMessages(ctx, kafka.Message{
		Key:   relayKey,
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.ID(), err)
	}
	return nil
}

func (r *KafkaRelay) Close() error {
	return r.writer.Close()
}

// ErrNoBrokers is returned when a kafka source or relay is configured
// without brokers.
var ErrNoBrokers = errors.New("no kafka brokers configured")

func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	if c.Topic == "" {
		return errors.New("no kafka topic configured")
	}
	return nil
}
