package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"perp-stats/internal/domain"
	"perp-stats/internal/logging"
	"perp-stats/internal/observability"
)

// KafkaConfig holds Kafka connection configuration for one chain topic.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes JSON records of one chain from a topic.
// An offset is committed only after its event was handled, so a halted
// chain resumes at the failed event.
type KafkaSource struct {
	reader  messageReader
	topic   string
	chainID int64
	log     *logrus.Entry
}

// NewKafkaSource creates a consumer group reader for cfg.Topic.
func NewKafkaSource(cfg KafkaConfig, chainID int64, logger *logrus.Entry) *KafkaSource {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0, // commits are explicit
		StartOffset:    kafka.FirstOffset,
	})
	return newKafkaSource(reader, cfg.Topic, chainID, logger)
}

func newKafkaSource(r messageReader, topic string, chainID int64, logger *logrus.Entry) *KafkaSource {
	return &KafkaSource{
		reader:  r,
		topic:   topic,
		chainID: chainID,
		log: logging.OrDefault(logger, "ingestion.kafka").
			WithFields(logrus.Fields{"chain_id": chainID, "topic": topic}),
	}
}

// Run consumes until ctx is done or handle fails.
// Malformed records, records of another chain and redelivered records are
// committed and skipped.
func (s *KafkaSource) Run(ctx context.Context, handle domain.EventHandler) error {
	var cur cursor
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch %s: %w", s.topic, err)
		}

		log := s.log.WithFields(logrus.Fields{"partition": msg.Partition, "offset": msg.Offset})

		rec, err := DecodeEvent(msg.Value)
		switch {
		case err != nil:
			log.WithError(err).Warn("skipping malformed record")
			observability.RecordEventSkipped("unknown", "malformed")
		case rec.ChainID != s.chainID:
			log.WithField("record_chain_id", rec.ChainID).Warn("skipping record of another chain")
			observability.RecordEventSkipped(rec.Event.Name(), "wrong_chain")
		case !cur.after(rec.Event.Meta()):
			log.WithField("block", rec.Event.Meta().BlockNumber).Debug("skipping redelivered record")
			observability.RecordEventSkipped(rec.Event.Name(), "redelivered")
		default:
			meta := rec.Event.Meta()
			if err := handle(ctx, rec.Event); err != nil {
				return fmt.Errorf("%s offset %d block %d tx %s: %w", s.topic, msg.Offset, meta.BlockNumber, meta.TxHash, err)
			}
			cur.advance(meta)
			observability.UpdateLastProcessedBlock(s.chainID, meta.BlockNumber)
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit %s offset %d: %w", s.topic, msg.Offset, err)
		}
	}
}

// Close closes the reader.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

// KafkaPublisher mirrors handled events to a topic so other consumers
// (or a replaying KafkaSource) can follow the chain without an RPC node.
type KafkaPublisher struct {
	writer  messageWriter
	chainID int64
	log     *logrus.Entry
}

// NewKafkaPublisher creates a synchronous producer for cfg.Topic.
func NewKafkaPublisher(cfg KafkaConfig, chainID int64, logger *logrus.Entry) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaPublisher(writer, chainID, logger)
}

func newKafkaPublisher(w messageWriter, chainID int64, logger *logrus.Entry) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  w,
		chainID: chainID,
		log:     logging.OrDefault(logger, "ingestion.kafka").WithField("chain_id", chainID),
	}
}

// Publish writes one event. Records are keyed by chain id so a topic
// shared by several chains still keeps each chain on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, ev domain.TradingEvent) error {
	data, err := EncodeEvent(p.chainID, ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprint(p.chainID)),
		Value: data,
		Time:  time.Now(),
	})
}

// Wrap returns a handler that publishes each event after next applied it.
// Publish failures are logged and do not fail the event: it is already
// applied and must not be applied twice.
func (p *KafkaPublisher) Wrap(next domain.EventHandler) domain.EventHandler {
	return func(ctx context.Context, ev domain.TradingEvent) error {
		if err := next(ctx, ev); err != nil {
			return err
		}
		if err := p.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
			p.log.WithError(err).WithField("block", ev.Meta().BlockNumber).Error("publish event")
		}
		return nil
	}
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
