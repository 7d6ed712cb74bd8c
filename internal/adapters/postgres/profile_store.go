package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/securebank/scoring-engine/internal/domain"
	"github.com/securebank/scoring-engine/internal/ports"
)

type profileStore struct {
	db *gorm.DB
}

func NewProfileStore(db *gorm.DB) ports.ProfileStore {
	return &profileStore{db: db}
}

func (s *profileStore) Get(ctx context.Context, customerID string) (domain.CustomerProfile, error) {
	var rec customerProfileModel
	if err := s.db.WithContext(ctx).Where("customer_id = ?", customerID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.CustomerProfile{}, domain.ErrNotFound
		}
		return domain.CustomerProfile{}, storeError("get profile", err)
	}
	profile, err := toDomainProfile(rec)
	if err != nil {
		return domain.CustomerProfile{}, storeError("decode profile", err)
	}
	return profile, nil
}

// ApplyUpdate performs the version-guarded conditional write. Insert and
// update both lose to a concurrent writer with domain.ErrVersionConflict;
// the caller re-reads and recomputes.
func (s *profileStore) ApplyUpdate(ctx context.Context, profile domain.CustomerProfile, expectedVersion int64) (int64, error) {
	newVersion := expectedVersion + 1
	profile.Version = newVersion
	rec, err := toProfileModel(profile)
	if err != nil {
		return 0, storeError("encode profile", err)
	}

	if expectedVersion == 0 {
		rec.CreatedAt = rec.UpdatedAt
		if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
			if isUniqueViolation(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
				return 0, domain.ErrVersionConflict
			}
			return 0, storeError("insert profile", err)
		}
		return newVersion, nil
	}

	res := s.db.WithContext(ctx).Model(&customerProfileModel{}).
		Where("customer_id = ? AND version = ?", profile.CustomerID, expectedVersion).
		Updates(map[string]any{
			"transaction_count":   rec.TransactionCount,
			"mean_amount":         rec.MeanAmount,
			"flagged_count":       rec.FlaggedCount,
			"last_latitude":       rec.LastLatitude,
			"last_longitude":      rec.LastLongitude,
			"last_city":           rec.LastCity,
			"last_state":          rec.LastState,
			"last_country":        rec.LastCountry,
			"last_seen_at":        rec.LastSeenAt,
			"last_transaction_id": rec.LastTransactionID,
			"window_entries":      rec.WindowEntries,
			"version":             newVersion,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, storeError("update profile", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, domain.ErrVersionConflict
	}
	return newVersion, nil
}
