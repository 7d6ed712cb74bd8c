package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/securebank/scoring-engine/internal/ports"
)

// KafkaSource adapts a consumer-group reader to ports.RecordSource. Offsets
// are committed explicitly: Resolve advances a partition's committed offset
// only past the contiguous prefix of resolved records, so a record left
// unresolved (shutdown mid-retry, dead-letter publish failure) is redelivered
// while nothing after it is lost.
type KafkaSource struct {
	reader *kafka.Reader

	mu         sync.Mutex
	partitions map[int]*partitionState
}

type partitionState struct {
	tracker *checkpointTracker
	pending map[int64]kafka.Message
}

func NewKafkaSource(brokers []string, groupID, topic string) (*KafkaSource, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka source requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka source requires group id")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka source requires a topic")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return &KafkaSource{
		reader:     reader,
		partitions: make(map[int]*partitionState),
	}, nil
}

func (s *KafkaSource) Fetch(ctx context.Context) (ports.Record, error) {
	msg, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return ports.Record{}, err
	}

	s.mu.Lock()
	state, ok := s.partitions[msg.Partition]
	if !ok {
		state = &partitionState{
			tracker: newCheckpointTracker(),
			pending: make(map[int64]kafka.Message),
		}
		s.partitions[msg.Partition] = state
	}
	state.tracker.Begin(msg.Offset)
	state.pending[msg.Offset] = msg
	s.mu.Unlock()

	return ports.Record{
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       string(msg.Key),
		Value:     msg.Value,
	}, nil
}

func (s *KafkaSource) Resolve(ctx context.Context, rec ports.Record) error {
	s.mu.Lock()
	state, ok := s.partitions[rec.Partition]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("resolve on unknown partition %d", rec.Partition)
	}
	committable := state.tracker.Resolve(rec.Offset)
	var commitMsg kafka.Message
	if committable >= 0 {
		commitMsg = state.pending[committable]
		for off := range state.pending {
			if off <= committable {
				delete(state.pending, off)
			}
		}
	}
	s.mu.Unlock()

	if committable < 0 {
		// An earlier record on this partition is still outstanding; its
		// resolution will carry this offset forward.
		return nil
	}
	return s.reader.CommitMessages(ctx, commitMsg)
}

func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

var _ ports.RecordSource = (*KafkaSource)(nil)
