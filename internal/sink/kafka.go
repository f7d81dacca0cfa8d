package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// KafkaSink publishes one message per line. The message key is the source id.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewKafka connects a synchronous producer that waits for all in-sync replicas
func NewKafka(brokers []string, topic string, logger zerolog.Logger) (*KafkaSink, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info().Strs("brokers", brokers).Str("topic", topic).Msg("connected to Kafka")
	return NewKafkaWithProducer(producer, topic, logger), nil
}

// NewKafkaConfig returns the producer configuration used by the Kafka sink
func NewKafkaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "sqlpoll"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// NewKafkaWithProducer wraps an existing producer
func NewKafkaWithProducer(producer sarama.SyncProducer, topic string, logger zerolog.Logger) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic, logger: logger}
}

// Emit sends all lines as one request batch. Any failed message Nacks the whole call.
func (s *KafkaSink) Emit(ctx context.Context, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var key sarama.Encoder
	if meta, ok := MetaFrom(ctx); ok && meta.SourceID != "" {
		key = sarama.StringEncoder(meta.SourceID)
	}

	messages := make([]*sarama.ProducerMessage, 0, len(lines))
	for _, line := range lines {
		messages = append(messages, &sarama.ProducerMessage{
			Topic: s.topic,
			Key:   key,
			Value: sarama.StringEncoder(line),
		})
	}

	if err := s.producer.SendMessages(messages); err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			return fmt.Errorf("failed to send %d of %d messages: %w", len(perrs), len(messages), err)
		}
		return fmt.Errorf("failed to send messages: %w", err)
	}

	s.logger.Debug().Str("topic", s.topic).Int("messages", len(messages)).Msg("produced messages")
	return nil
}

// Close closes the producer
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
