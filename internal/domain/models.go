package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Location is the optional geolocation attached to a transaction.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city,omitempty"`
	State     string  `json:"state,omitempty"`
	Country   string  `json:"country,omitempty"`
}

// Transaction is the validated, immutable input record. The transaction id is
// caller-assigned and globally unique: two records carrying the same id are
// the same transaction.
type Transaction struct {
	TransactionID    string            `json:"transaction_id"`
	CustomerID       string            `json:"customer_id"`
	AccountID        string            `json:"account_id"`
	TransactionType  string            `json:"transaction_type"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	MerchantID       string            `json:"merchant_id"`
	MerchantCategory string            `json:"merchant_category"`
	Location         *Location         `json:"location,omitempty"`
	PaymentMethod    string            `json:"payment_method"`
	CardPresent      *bool             `json:"card_present,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

// WindowEntry is one recent transaction in a customer's activity window.
type WindowEntry struct {
	TransactionID string          `json:"transaction_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Amount        decimal.Decimal `json:"amount"`
}

// CustomerProfile is the per-customer behavioral aggregate. It is created
// lazily on the customer's first transaction and mutated exactly once per
// successfully processed transaction, guarded by Version.
//
// LastTransactionID records the most recent transaction whose update was
// applied; redelivery recovery uses it to detect a crash between the scored
// transaction insert and the profile update.
type CustomerProfile struct {
	CustomerID        string
	TransactionCount  int64
	MeanAmount        decimal.Decimal
	FlaggedCount      int64
	LastLocation      *Location
	LastSeenAt        *time.Time
	LastTransactionID string
	Window            []WindowEntry
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ScoringResult is the output of the rule engine for one transaction.
type ScoringResult struct {
	RiskScore  float64
	Indicators []string
	IsFraud    bool
}

// ScoredTransaction is the durable output record, owned by the persistence
// writer once committed.
type ScoredTransaction struct {
	TransactionID string          `json:"transaction_id"`
	CustomerID    string          `json:"customer_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	MerchantID    string          `json:"merchant_id"`
	Timestamp     time.Time       `json:"timestamp"`
	RiskScore     float64         `json:"risk_score"`
	IsFraud       bool            `json:"is_fraud"`
	FraudReasons  []string        `json:"fraud_reasons"`
	ProcessedAt   time.Time       `json:"processed_at"`
}

// ArchiveRecord is the verbatim input payload plus the processing timestamp,
// appended to the analytics archive under a time-partitioned path.
type ArchiveRecord struct {
	TransactionID string
	EventTime     time.Time
	ProcessedAt   time.Time
	Payload       []byte
}

// DeadLetterEntry preserves a record that could not be processed, for manual
// inspection or replay.
type DeadLetterEntry struct {
	ID            string    `json:"id"`
	RawPayload    []byte    `json:"raw_payload"`
	ErrorKind     string    `json:"error_kind"`
	ErrorDetail   string    `json:"error_detail"`
	AttemptCount  int       `json:"attempt_count"`
	FirstFailedAt time.Time `json:"first_failed_at"`
	LastFailedAt  time.Time `json:"last_failed_at"`
}

// Error kinds recorded on dead-letter entries.
const (
	ErrorKindValidation     = "validation"
	ErrorKindTransientStore = "transient_store"
	ErrorKindPermanentStore = "permanent_store"
)

// NewProfile returns the empty aggregate for a customer not seen before.
func NewProfile(customerID string, now time.Time) CustomerProfile {
	return CustomerProfile{
		CustomerID: customerID,
		MeanAmount: decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
