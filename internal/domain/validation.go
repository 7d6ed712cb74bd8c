package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var supportedCurrencies = map[string]struct{}{
	"USD": {},
	"EUR": {},
	"GBP": {},
	"CAD": {},
}

type transactionWire struct {
	TransactionID    string            `json:"transaction_id"`
	CustomerID       string            `json:"customer_id"`
	AccountID        string            `json:"account_id"`
	TransactionType  string            `json:"transaction_type"`
	Amount           *decimal.Decimal  `json:"amount"`
	Currency         string            `json:"currency"`
	MerchantID       string            `json:"merchant_id"`
	MerchantCategory string            `json:"merchant_category"`
	Location         *Location         `json:"location"`
	PaymentMethod    string            `json:"payment_method"`
	CardPresent      *bool             `json:"card_present"`
	Metadata         map[string]string `json:"metadata"`
	Timestamp        string            `json:"timestamp"`
}

// ParseTransaction decodes and validates a raw input record. Every failure
// wraps ErrValidation: a payload that fails here will never succeed on
// redelivery.
func ParseTransaction(raw []byte) (Transaction, error) {
	var w transactionWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Transaction{}, fmt.Errorf("%w: malformed payload: %v", ErrValidation, err)
	}

	if w.TransactionID == "" {
		return Transaction{}, fmt.Errorf("%w: missing transaction_id", ErrValidation)
	}
	if w.CustomerID == "" {
		return Transaction{}, fmt.Errorf("%w: missing customer_id", ErrValidation)
	}
	if w.Amount == nil {
		return Transaction{}, fmt.Errorf("%w: missing amount", ErrValidation)
	}
	if !w.Amount.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: amount must be positive, got %s", ErrValidation, w.Amount)
	}
	if _, ok := supportedCurrencies[w.Currency]; !ok {
		return Transaction{}, fmt.Errorf("%w: unsupported currency %q", ErrValidation, w.Currency)
	}
	if w.MerchantID == "" {
		return Transaction{}, fmt.Errorf("%w: missing merchant_id", ErrValidation)
	}
	if w.Timestamp == "" {
		return Transaction{}, fmt.Errorf("%w: missing timestamp", ErrValidation)
	}
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: bad timestamp %q: %v", ErrValidation, w.Timestamp, err)
	}
	if w.Location != nil {
		if w.Location.Latitude < -90 || w.Location.Latitude > 90 {
			return Transaction{}, fmt.Errorf("%w: latitude %v out of range", ErrValidation, w.Location.Latitude)
		}
		if w.Location.Longitude < -180 || w.Location.Longitude > 180 {
			return Transaction{}, fmt.Errorf("%w: longitude %v out of range", ErrValidation, w.Location.Longitude)
		}
	}

	return Transaction{
		TransactionID:    w.TransactionID,
		CustomerID:       w.CustomerID,
		AccountID:        w.AccountID,
		TransactionType:  w.TransactionType,
		Amount:           *w.Amount,
		Currency:         w.Currency,
		MerchantID:       w.MerchantID,
		MerchantCategory: w.MerchantCategory,
		Location:         w.Location,
		PaymentMethod:    w.PaymentMethod,
		CardPresent:      w.CardPresent,
		Metadata:         w.Metadata,
		Timestamp:        ts,
	}, nil
}
