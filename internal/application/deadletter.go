package application

import (
	"context"
	"errors"

	"github.com/securebank/scoring-engine/internal/domain"
	"github.com/securebank/scoring-engine/internal/ports"
)

// FanOutDeadLetterSink publishes to every configured sink (typically the DLQ
// topic and the inspection table). The entry counts as published when at
// least one sink accepted it: losing the secondary copy is better than
// stalling the partition.
type FanOutDeadLetterSink struct {
	sinks []ports.DeadLetterSink
}

func NewFanOutDeadLetterSink(sinks ...ports.DeadLetterSink) *FanOutDeadLetterSink {
	return &FanOutDeadLetterSink{sinks: sinks}
}

func (s *FanOutDeadLetterSink) Publish(ctx context.Context, entry domain.DeadLetterEntry) error {
	if len(s.sinks) == 0 {
		return errors.New("no dead letter sinks configured")
	}
	var errs []error
	published := false
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, entry); err != nil {
			errs = append(errs, err)
		} else {
			published = true
		}
	}
	if published {
		return nil
	}
	return errors.Join(errs...)
}

var _ ports.DeadLetterSink = (*FanOutDeadLetterSink)(nil)
