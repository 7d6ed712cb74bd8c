package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/securebank/scoring-engine/internal/domain"
	"github.com/securebank/scoring-engine/internal/ports"
)

// KafkaDeadLetterPublisher writes dead-letter entries to the DLQ topic, keyed
// by the entry id so replays of the same entry land on one partition.
type KafkaDeadLetterPublisher struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaDeadLetterPublisher(brokers []string, topic string) (*KafkaDeadLetterPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("dead letter publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("dead letter publisher requires a topic")
	}
	return &KafkaDeadLetterPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

func (p *KafkaDeadLetterPublisher) Publish(ctx context.Context, entry domain.DeadLetterEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode dead letter entry: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(entry.ID),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaDeadLetterPublisher) Close() error {
	return p.writer.Close()
}

var _ ports.DeadLetterSink = (*KafkaDeadLetterPublisher)(nil)
