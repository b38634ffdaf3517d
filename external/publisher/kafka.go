package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/foxseedlab/koewake/internal/publisher"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes final entries to one topic keyed by recording ID.
// Without brokers it only logs.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger zerolog.Logger
}

type Config struct {
	Brokers []string
	Topic   string
}

func NewKafkaPublisher(cfg Config, logger zerolog.Logger) *KafkaPublisher {
	if len(cfg.Brokers) == 0 {
		logger.Info().Msg("kafka disabled, using log-only mode")
		return &KafkaPublisher{topic: cfg.Topic, logger: logger}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	logger.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("kafka publisher initialized")
	return &KafkaPublisher{writer: writer, topic: cfg.Topic, logger: logger}
}

func (p *KafkaPublisher) PublishFinal(ctx context.Context, event publisher.FinalEntryEvent) error {
	if event.EventType == "" {
		event.EventType = publisher.EventTypeFinal
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.logger.Debug().
		Str("topic", p.topic).
		Str("key", event.RecordingID).
		RawJSON("payload", payload).
		Msg("publishing final entry")

	if p.writer == nil {
		return nil
	}
	msg := kafka.Message{
		Key:   []byte(event.RecordingID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(event.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().Err(err).Str("topic", p.topic).Str("key", event.RecordingID).Msg("failed to write to kafka")
		return err
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
