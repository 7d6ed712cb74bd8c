package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/securebank/scoring-engine/internal/domain"
	"github.com/securebank/scoring-engine/internal/ports"
)

// deadLetterStore keeps dead letters queryable for inspection and replay,
// alongside whatever topic-based sink the runtime wires.
type deadLetterStore struct {
	db *gorm.DB
}

func NewDeadLetterStore(db *gorm.DB) ports.DeadLetterSink {
	return &deadLetterStore{db: db}
}

func (s *deadLetterStore) Publish(ctx context.Context, entry domain.DeadLetterEntry) error {
	rec := deadLetterModel{
		ID:            entry.ID,
		RawPayload:    entry.RawPayload,
		ErrorKind:     entry.ErrorKind,
		ErrorDetail:   entry.ErrorDetail,
		AttemptCount:  entry.AttemptCount,
		FirstFailedAt: entry.FirstFailedAt,
		LastFailedAt:  entry.LastFailedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			// Same entry id republished after a partial failure.
			return nil
		}
		return storeError("insert dead letter", err)
	}
	return nil
}
