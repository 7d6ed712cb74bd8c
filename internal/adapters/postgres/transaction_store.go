package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/securebank/scoring-engine/internal/domain"
	"github.com/securebank/scoring-engine/internal/ports"
)

type transactionStore struct {
	db *gorm.DB
}

func NewTransactionStore(db *gorm.DB) ports.TransactionStore {
	return &transactionStore{db: db}
}

// InsertScored is the idempotency gate: the primary key on transaction_id
// turns a redelivered record into domain.ErrDuplicateTransaction instead of
// a second row.
func (s *transactionStore) InsertScored(ctx context.Context, st domain.ScoredTransaction) error {
	rec, err := toScoredModel(st)
	if err != nil {
		return storeError("encode scored transaction", err)
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateTransaction
		}
		return storeError("insert scored transaction", err)
	}
	return nil
}

func (s *transactionStore) GetScored(ctx context.Context, transactionID string) (domain.ScoredTransaction, error) {
	var rec scoredTransactionModel
	if err := s.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ScoredTransaction{}, domain.ErrNotFound
		}
		return domain.ScoredTransaction{}, storeError("get scored transaction", err)
	}
	st, err := toDomainScored(rec)
	if err != nil {
		return domain.ScoredTransaction{}, storeError("decode scored transaction", err)
	}
	return st, nil
}
