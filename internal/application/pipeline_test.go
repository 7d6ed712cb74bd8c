package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/securebank/scoring-engine/internal/adapters/memory"
	"github.com/securebank/scoring-engine/internal/domain"
	"github.com/securebank/scoring-engine/internal/ports"
	"github.com/securebank/scoring-engine/internal/scoring"
)

type pipelineFixture struct {
	pipeline     *Pipeline
	profiles     *memory.ProfileStore
	transactions *memory.TransactionStore
	archive      *memory.ArchiveSink
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	profiles := memory.NewProfileStore()
	transactions := memory.NewTransactionStore()
	archive := memory.NewArchiveSink()
	pipeline := NewPipeline(PipelineDeps{
		Engine:       scoring.NewEngine(scoring.DefaultConfig()),
		Profiles:     profiles,
		Transactions: transactions,
		Archive:      archive,
	})
	return &pipelineFixture{
		pipeline:     pipeline,
		profiles:     profiles,
		transactions: transactions,
		archive:      archive,
	}
}

func payload(txnID, customerID, amount string, ts time.Time) []byte {
	return []byte(fmt.Sprintf(`{
		"transaction_id": %q,
		"customer_id": %q,
		"amount": %q,
		"currency": "USD",
		"merchant_id": "merch-001",
		"timestamp": %q
	}`, txnID, customerID, amount, ts.Format(time.RFC3339)))
}

func TestProcessNewCustomer(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)
	ctx := context.Background()
	ts := time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC)

	result, err := f.pipeline.Process(ctx, payload("txn-001", "cust-001", "50.00", ts))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("first delivery must not be a duplicate")
	}
	if result.Scored.IsFraud {
		t.Fatalf("single benign transaction must not be flagged, got %+v", result.Scored)
	}

	if f.transactions.Count() != 1 {
		t.Fatalf("expected one committed transaction, got %d", f.transactions.Count())
	}
	profile, err := f.profiles.Get(ctx, "cust-001")
	if err != nil {
		t.Fatalf("profile must exist after processing: %v", err)
	}
	if profile.TransactionCount != 1 {
		t.Fatalf("expected transaction count 1, got %d", profile.TransactionCount)
	}
	if !profile.MeanAmount.Equal(mustDecimal(t, "50.00")) {
		t.Fatalf("expected mean 50.00, got %s", profile.MeanAmount)
	}
	if profile.Version != 1 {
		t.Fatalf("expected version 1, got %d", profile.Version)
	}
	if len(f.archive.Records()) != 1 {
		t.Fatalf("expected one archive record, got %d", len(f.archive.Records()))
	}
}

func TestProcessRedeliveryIsNoop(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)
	ctx := context.Background()
	ts := time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC)
	raw := payload("txn-001", "cust-001", "50.00", ts)

	if _, err := f.pipeline.Process(ctx, raw); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	result, err := f.pipeline.Process(ctx, raw)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("redelivery must report duplicate")
	}

	profile, _ := f.profiles.Get(ctx, "cust-001")
	if profile.TransactionCount != 1 {
		t.Fatalf("redelivery must not re-apply the profile update, count %d", profile.TransactionCount)
	}
	if f.transactions.Count() != 1 {
		t.Fatalf("redelivery must not duplicate the scored record, count %d", f.transactions.Count())
	}
}

func TestProcessRecoversInterruptedProfileUpdate(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)
	ctx := context.Background()
	ts := time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC)

	// Simulate a crash between the scored insert and the profile update:
	// the scored record exists, the profile does not know the transaction.
	pre := domain.ScoredTransaction{
		TransactionID: "txn-001",
		CustomerID:    "cust-001",
		Amount:        mustDecimal(t, "50.00"),
		Currency:      "USD",
		MerchantID:    "merch-001",
		Timestamp:     ts,
		RiskScore:     0.1,
		FraudReasons:  []string{scoring.RuleTimeAnomaly},
		ProcessedAt:   ts,
	}
	if err := f.transactions.InsertScored(ctx, pre); err != nil {
		t.Fatalf("seed scored transaction: %v", err)
	}

	result, err := f.pipeline.Process(ctx, payload("txn-001", "cust-001", "50.00", ts))
	if err != nil {
		t.Fatalf("recovery delivery: %v", err)
	}
	if !result.Duplicate {
		t.Fatalf("recovery delivery must report duplicate")
	}
	if result.Scored.RiskScore != 0.1 {
		t.Fatalf("recovery must surface the stored result, got %+v", result.Scored)
	}

	profile, err := f.profiles.Get(ctx, "cust-001")
	if err != nil {
		t.Fatalf("profile must exist after recovery: %v", err)
	}
	if profile.TransactionCount != 1 || profile.LastTransactionID != "txn-001" {
		t.Fatalf("recovery must apply the missed profile update, got %+v", profile)
	}
}

func TestProcessConcurrentUpdatesSameCustomer(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)
	ctx := context.Background()
	ts := time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := payload(fmt.Sprintf("txn-%03d", i), "cust-001", "20.00", ts.Add(time.Duration(i)*time.Minute))
			_, errs[i] = f.pipeline.Process(ctx, raw)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}

	profile, _ := f.profiles.Get(ctx, "cust-001")
	if profile.TransactionCount != 2 {
		t.Fatalf("both updates must land, count %d", profile.TransactionCount)
	}
	if len(profile.Window) != 2 {
		t.Fatalf("both window entries must land, got %d", len(profile.Window))
	}
}

func TestProcessValidationFailure(t *testing.T) {
	t.Parallel()
	f := newPipelineFixture(t)

	_, err := f.pipeline.Process(context.Background(), []byte(`{"transaction_id":"t"}`))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if f.transactions.Count() != 0 {
		t.Fatalf("invalid record must not be committed")
	}
}

type failingProfileStore struct {
	ports.ProfileStore
	failures int
	mu       sync.Mutex
}

func (s *failingProfileStore) Get(ctx context.Context, customerID string) (domain.CustomerProfile, error) {
	s.mu.Lock()
	remaining := s.failures
	if remaining > 0 {
		s.failures--
	}
	s.mu.Unlock()
	if remaining > 0 {
		return domain.CustomerProfile{}, fmt.Errorf("connection refused: %w", domain.ErrTransientStore)
	}
	return s.ProfileStore.Get(ctx, customerID)
}

func TestProcessSurfacesTransientStoreFailure(t *testing.T) {
	t.Parallel()
	profiles := &failingProfileStore{ProfileStore: memory.NewProfileStore(), failures: 100}
	pipeline := NewPipeline(PipelineDeps{
		Engine:       scoring.NewEngine(scoring.DefaultConfig()),
		Profiles:     profiles,
		Transactions: memory.NewTransactionStore(),
		Archive:      memory.NewArchiveSink(),
	})

	ts := time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC)
	_, err := pipeline.Process(context.Background(), payload("txn-001", "cust-001", "50.00", ts))
	if !errors.Is(err, domain.ErrTransientStore) {
		t.Fatalf("expected ErrTransientStore, got %v", err)
	}
}

type spyCache struct {
	mu          sync.Mutex
	snapshots   map[string]domain.CustomerProfile
	invalidated []string
}

func newSpyCache() *spyCache {
	return &spyCache{snapshots: make(map[string]domain.CustomerProfile)}
}

func (c *spyCache) Get(_ context.Context, customerID string) (domain.CustomerProfile, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.snapshots[customerID]
	return p, ok, nil
}

func (c *spyCache) Set(_ context.Context, profile domain.CustomerProfile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[profile.CustomerID] = profile
	return nil
}

func (c *spyCache) Invalidate(_ context.Context, customerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, customerID)
	c.invalidated = append(c.invalidated, customerID)
	return nil
}

func (c *spyCache) invalidations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.invalidated))
	copy(out, c.invalidated)
	return out
}

// conflictingProfileStore rejects the first ApplyUpdate with a version
// conflict, then delegates.
type conflictingProfileStore struct {
	ports.ProfileStore
	mu        sync.Mutex
	conflicts int
}

func (s *conflictingProfileStore) ApplyUpdate(ctx context.Context, profile domain.CustomerProfile, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	remaining := s.conflicts
	if remaining > 0 {
		s.conflicts--
	}
	s.mu.Unlock()
	if remaining > 0 {
		return 0, domain.ErrVersionConflict
	}
	return s.ProfileStore.ApplyUpdate(ctx, profile, expectedVersion)
}

func TestProcessInvalidatesCacheOnVersionConflict(t *testing.T) {
	t.Parallel()
	cache := newSpyCache()
	pipeline := NewPipeline(PipelineDeps{
		Engine:       scoring.NewEngine(scoring.DefaultConfig()),
		Profiles:     &conflictingProfileStore{ProfileStore: memory.NewProfileStore(), conflicts: 1},
		Cache:        cache,
		Transactions: memory.NewTransactionStore(),
		Archive:      memory.NewArchiveSink(),
	})

	ts := time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC)
	if _, err := pipeline.Process(context.Background(), payload("txn-001", "cust-001", "50.00", ts)); err != nil {
		t.Fatalf("process must recover from one conflict: %v", err)
	}

	if got := cache.invalidations(); len(got) != 1 || got[0] != "cust-001" {
		t.Fatalf("losing a CAS race must drop the cached snapshot, invalidations %v", got)
	}
	// The winning retry refreshes the cache afterwards.
	if _, hit, _ := cache.Get(context.Background(), "cust-001"); !hit {
		t.Fatalf("successful update must re-cache the profile")
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}
