package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/securebank/scoring-engine/internal/domain"
	"github.com/securebank/scoring-engine/internal/ports"
)

func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") {
		opt, parseErr := redis.ParseURL(redisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("parse redis url: %w", parseErr)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

const profileKeyPrefix = "fraud:profile:"

// RedisProfileCache caches profile snapshots for the scoring read. Snapshots
// carry their version, so a stale hit at worst costs one extra conflict
// round-trip in the store's CAS loop.
type RedisProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProfileCache(client *redis.Client, ttl time.Duration) *RedisProfileCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisProfileCache{client: client, ttl: ttl}
}

func (c *RedisProfileCache) Get(ctx context.Context, customerID string) (domain.CustomerProfile, bool, error) {
	raw, err := c.client.Get(ctx, profileKeyPrefix+customerID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.CustomerProfile{}, false, nil
	}
	if err != nil {
		return domain.CustomerProfile{}, false, err
	}
	var snap profileSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return domain.CustomerProfile{}, false, err
	}
	return snap.toDomain(), true, nil
}

func (c *RedisProfileCache) Set(ctx context.Context, profile domain.CustomerProfile) error {
	raw, err := json.Marshal(newProfileSnapshot(profile))
	if err != nil {
		return err
	}
	return c.client.Set(ctx, profileKeyPrefix+profile.CustomerID, raw, c.ttl).Err()
}

func (c *RedisProfileCache) Invalidate(ctx context.Context, customerID string) error {
	return c.client.Del(ctx, profileKeyPrefix+customerID).Err()
}

var _ ports.ProfileCache = (*RedisProfileCache)(nil)

// profileSnapshot is the cache wire form; it mirrors the domain profile
// field for field so cached entries survive reader/writer version skew
// explicitly rather than through struct tags on the domain type.
type profileSnapshot struct {
	CustomerID        string               `json:"customer_id"`
	TransactionCount  int64                `json:"transaction_count"`
	MeanAmount        string               `json:"mean_amount"`
	FlaggedCount      int64                `json:"flagged_count"`
	LastLocation      *domain.Location     `json:"last_location,omitempty"`
	LastSeenAt        *time.Time           `json:"last_seen_at,omitempty"`
	LastTransactionID string               `json:"last_transaction_id"`
	Window            []domain.WindowEntry `json:"window"`
	Version           int64                `json:"version"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

func newProfileSnapshot(p domain.CustomerProfile) profileSnapshot {
	return profileSnapshot{
		CustomerID:        p.CustomerID,
		TransactionCount:  p.TransactionCount,
		MeanAmount:        p.MeanAmount.String(),
		FlaggedCount:      p.FlaggedCount,
		LastLocation:      p.LastLocation,
		LastSeenAt:        p.LastSeenAt,
		LastTransactionID: p.LastTransactionID,
		Window:            p.Window,
		Version:           p.Version,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func (s profileSnapshot) toDomain() domain.CustomerProfile {
	mean, err := decimal.NewFromString(s.MeanAmount)
	if err != nil {
		mean = decimal.Zero
	}
	return domain.CustomerProfile{
		CustomerID:        s.CustomerID,
		TransactionCount:  s.TransactionCount,
		MeanAmount:        mean,
		FlaggedCount:      s.FlaggedCount,
		LastLocation:      s.LastLocation,
		LastSeenAt:        s.LastSeenAt,
		LastTransactionID: s.LastTransactionID,
		Window:            s.Window,
		Version:           s.Version,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}
