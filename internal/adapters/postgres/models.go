package postgres

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/securebank/scoring-engine/internal/domain"
)

type customerProfileModel struct {
	CustomerID        string `gorm:"primaryKey"`
	TransactionCount  int64
	MeanAmount        decimal.Decimal `gorm:"type:numeric(18,4)"`
	FlaggedCount      int64
	LastLatitude      *float64
	LastLongitude     *float64
	LastCity          *string
	LastState         *string
	LastCountry       *string
	LastSeenAt        *time.Time
	LastTransactionID string
	WindowEntries     []byte `gorm:"type:jsonb"`
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (customerProfileModel) TableName() string { return "customer_profiles" }

type scoredTransactionModel struct {
	TransactionID string `gorm:"primaryKey"`
	CustomerID    string
	Amount        decimal.Decimal `gorm:"type:numeric(18,4)"`
	Currency      string
	MerchantID    string
	EventTime     time.Time
	RiskScore     float64
	IsFraud       bool
	FraudReasons  []byte `gorm:"type:jsonb"`
	ProcessedAt   time.Time
}

func (scoredTransactionModel) TableName() string { return "scored_transactions" }

type deadLetterModel struct {
	ID            string `gorm:"primaryKey"`
	RawPayload    []byte
	ErrorKind     string
	ErrorDetail   string
	AttemptCount  int
	FirstFailedAt time.Time
	LastFailedAt  time.Time
}

func (deadLetterModel) TableName() string { return "dead_letters" }

func toProfileModel(p domain.CustomerProfile) (customerProfileModel, error) {
	window, err := json.Marshal(p.Window)
	if err != nil {
		return customerProfileModel{}, err
	}
	rec := customerProfileModel{
		CustomerID:        p.CustomerID,
		TransactionCount:  p.TransactionCount,
		MeanAmount:        p.MeanAmount,
		FlaggedCount:      p.FlaggedCount,
		LastSeenAt:        p.LastSeenAt,
		LastTransactionID: p.LastTransactionID,
		WindowEntries:     window,
		Version:           p.Version,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if p.LastLocation != nil {
		rec.LastLatitude = &p.LastLocation.Latitude
		rec.LastLongitude = &p.LastLocation.Longitude
		rec.LastCity = &p.LastLocation.City
		rec.LastState = &p.LastLocation.State
		rec.LastCountry = &p.LastLocation.Country
	}
	return rec, nil
}

func toDomainProfile(rec customerProfileModel) (domain.CustomerProfile, error) {
	p := domain.CustomerProfile{
		CustomerID:        rec.CustomerID,
		TransactionCount:  rec.TransactionCount,
		MeanAmount:        rec.MeanAmount,
		FlaggedCount:      rec.FlaggedCount,
		LastSeenAt:        rec.LastSeenAt,
		LastTransactionID: rec.LastTransactionID,
		Version:           rec.Version,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
	if rec.LastLatitude != nil && rec.LastLongitude != nil {
		loc := domain.Location{Latitude: *rec.LastLatitude, Longitude: *rec.LastLongitude}
		if rec.LastCity != nil {
			loc.City = *rec.LastCity
		}
		if rec.LastState != nil {
			loc.State = *rec.LastState
		}
		if rec.LastCountry != nil {
			loc.Country = *rec.LastCountry
		}
		p.LastLocation = &loc
	}
	if len(rec.WindowEntries) > 0 {
		if err := json.Unmarshal(rec.WindowEntries, &p.Window); err != nil {
			return domain.CustomerProfile{}, err
		}
	}
	return p, nil
}

func toScoredModel(st domain.ScoredTransaction) (scoredTransactionModel, error) {
	reasons := st.FraudReasons
	if reasons == nil {
		reasons = []string{}
	}
	raw, err := json.Marshal(reasons)
	if err != nil {
		return scoredTransactionModel{}, err
	}
	return scoredTransactionModel{
		TransactionID: st.TransactionID,
		CustomerID:    st.CustomerID,
		Amount:        st.Amount,
		Currency:      st.Currency,
		MerchantID:    st.MerchantID,
		EventTime:     st.Timestamp,
		RiskScore:     st.RiskScore,
		IsFraud:       st.IsFraud,
		FraudReasons:  raw,
		ProcessedAt:   st.ProcessedAt,
	}, nil
}

func toDomainScored(rec scoredTransactionModel) (domain.ScoredTransaction, error) {
	st := domain.ScoredTransaction{
		TransactionID: rec.TransactionID,
		CustomerID:    rec.CustomerID,
		Amount:        rec.Amount,
		Currency:      rec.Currency,
		MerchantID:    rec.MerchantID,
		Timestamp:     rec.EventTime,
		RiskScore:     rec.RiskScore,
		IsFraud:       rec.IsFraud,
		ProcessedAt:   rec.ProcessedAt,
	}
	if len(rec.FraudReasons) > 0 {
		if err := json.Unmarshal(rec.FraudReasons, &st.FraudReasons); err != nil {
			return domain.ScoredTransaction{}, err
		}
	}
	return st, nil
}
