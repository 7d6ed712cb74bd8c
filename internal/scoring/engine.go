// Package scoring implements the fraud risk rule engine.
//
// The engine is a pure function of (transaction, profile snapshot, activity
// window snapshot, configuration). It reads no clock beyond the transaction's
// own timestamp and uses no randomness, so identical inputs always produce
// identical output. Each rule contributes its configured weight when its
// predicate triggers; the total is clamped to [0, 1].
package scoring

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/securebank/scoring-engine/internal/domain"
)

// Input is the snapshot a single scoring call operates on. Window is the
// customer's activity window as of before this transaction; the transaction
// itself is not yet part of it.
type Input struct {
	Transaction domain.Transaction
	Profile     domain.CustomerProfile
	HasProfile  bool
	Window      []domain.WindowEntry
}

// Rule is one named, weighted trigger predicate. Rules are data: the engine
// aggregates whatever rules it holds without knowing their names.
type Rule struct {
	Name    string
	Weight  float64
	Trigger func(Input) bool
}

// Engine evaluates a fixed rule list against scoring inputs. It is stateless
// and safe for concurrent use.
type Engine struct {
	rules     []Rule
	threshold float64
}

// NewEngine builds an engine from the enumerable rule configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		threshold: cfg.FraudThreshold,
		rules: []Rule{
			{Name: RuleVelocity, Weight: cfg.Velocity.Weight, Trigger: velocityTrigger(cfg)},
			{Name: RuleAmountAnomaly, Weight: cfg.AmountAnomaly.Weight, Trigger: amountAnomalyTrigger(cfg)},
			{Name: RuleLocationAnomaly, Weight: cfg.LocationAnomaly.Weight, Trigger: locationAnomalyTrigger(cfg)},
			{Name: RuleTimeAnomaly, Weight: cfg.TimeAnomaly.Weight, Trigger: timeAnomalyTrigger(cfg)},
		},
	}
}

// Register appends a custom rule. New rules participate in aggregation with
// no change to Score.
func (e *Engine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Score runs every rule and aggregates triggered weights.
func (e *Engine) Score(in Input) domain.ScoringResult {
	var total float64
	var indicators []string
	for _, rule := range e.rules {
		if rule.Weight <= 0 || rule.Trigger == nil {
			continue
		}
		if rule.Trigger(in) {
			total += rule.Weight
			indicators = append(indicators, rule.Name)
		}
	}
	if total < 0 {
		total = 0
	}
	if total > 1 {
		total = 1
	}
	return domain.ScoringResult{
		RiskScore:  total,
		Indicators: indicators,
		IsFraud:    total > e.threshold,
	}
}

// velocityTrigger fires when the customer's transactions inside the trailing
// window, counting the incoming one, reach the threshold. Window entries
// after the transaction's own timestamp (late-arrival reprocessing) are not
// part of its trailing window.
func velocityTrigger(cfg Config) func(Input) bool {
	threshold := cfg.Velocity.Threshold
	window := cfg.Velocity.Window
	return func(in Input) bool {
		t := in.Transaction.Timestamp
		inWindow := domain.CountWindowSince(in.Window, t.Add(-window)) - domain.CountWindowSince(in.Window, t)
		return inWindow+1 >= threshold
	}
}

// amountAnomalyTrigger fires on amount > multiplier x running mean. A
// customer with no prior transactions has no baseline, so the rule never
// triggers for them.
func amountAnomalyTrigger(cfg Config) func(Input) bool {
	multiplier := decimal.NewFromFloat(cfg.AmountAnomaly.Multiplier)
	return func(in Input) bool {
		if !in.HasProfile || in.Profile.TransactionCount == 0 {
			return false
		}
		return in.Transaction.Amount.GreaterThan(in.Profile.MeanAmount.Mul(multiplier))
	}
}

// locationAnomalyTrigger fires when the customer appears further from their
// last known location than the distance threshold, faster than plausibly
// travelable. Skipped when either side lacks location data.
func locationAnomalyTrigger(cfg Config) func(Input) bool {
	return func(in Input) bool {
		cur := in.Transaction.Location
		prev := in.Profile.LastLocation
		if cur == nil || prev == nil || in.Profile.LastSeenAt == nil {
			return false
		}
		dist := haversineMiles(prev.Latitude, prev.Longitude, cur.Latitude, cur.Longitude)
		if dist <= cfg.LocationAnomaly.DistanceMiles {
			return false
		}
		elapsed := in.Transaction.Timestamp.Sub(*in.Profile.LastSeenAt)
		if elapsed <= 0 {
			return true
		}
		return dist/elapsed.Hours() > cfg.LocationAnomaly.MaxSpeedMPH
	}
}

// timeAnomalyTrigger fires when the transaction's local hour falls outside
// the configured normal window.
func timeAnomalyTrigger(cfg Config) func(Input) bool {
	return func(in Input) bool {
		hour := in.Transaction.Timestamp.Hour()
		return hour < cfg.TimeAnomaly.StartHour || hour >= cfg.TimeAnomaly.EndHour
	}
}

const earthRadiusMiles = 3958.8

func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMiles * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
