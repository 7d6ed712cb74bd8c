package scoring

import "time"

// Defaults for the rule set. Every value is overridable through
// configuration; nothing below is load-bearing in the aggregation logic.
const (
	DefaultFraudThreshold = 0.8

	DefaultVelocityWeight    = 0.4
	DefaultVelocityThreshold = 5
	DefaultVelocityWindow    = time.Hour

	DefaultAmountWeight     = 0.3
	DefaultAmountMultiplier = 3.0

	DefaultLocationWeight        = 0.2
	DefaultLocationDistanceMiles = 500.0
	DefaultLocationMaxSpeedMPH   = 500.0

	DefaultTimeWeight    = 0.1
	DefaultTimeStartHour = 6
	DefaultTimeEndHour   = 22
)

// Rule names emitted as fraud indicators.
const (
	RuleVelocity        = "velocity"
	RuleAmountAnomaly   = "amount-anomaly"
	RuleLocationAnomaly = "location-anomaly"
	RuleTimeAnomaly     = "time-anomaly"
)

// Config is the enumerable rule configuration. Weights and parameters are
// data; the engine never branches on rule names.
type Config struct {
	FraudThreshold float64

	Velocity struct {
		Weight    float64
		Threshold int
		Window    time.Duration
	}
	AmountAnomaly struct {
		Weight     float64
		Multiplier float64
	}
	LocationAnomaly struct {
		Weight        float64
		DistanceMiles float64
		MaxSpeedMPH   float64
	}
	TimeAnomaly struct {
		Weight    float64
		StartHour int
		EndHour   int
	}
}

// DefaultConfig returns the rule set with all stated defaults.
func DefaultConfig() Config {
	var cfg Config
	cfg.FraudThreshold = DefaultFraudThreshold
	cfg.Velocity.Weight = DefaultVelocityWeight
	cfg.Velocity.Threshold = DefaultVelocityThreshold
	cfg.Velocity.Window = DefaultVelocityWindow
	cfg.AmountAnomaly.Weight = DefaultAmountWeight
	cfg.AmountAnomaly.Multiplier = DefaultAmountMultiplier
	cfg.LocationAnomaly.Weight = DefaultLocationWeight
	cfg.LocationAnomaly.DistanceMiles = DefaultLocationDistanceMiles
	cfg.LocationAnomaly.MaxSpeedMPH = DefaultLocationMaxSpeedMPH
	cfg.TimeAnomaly.Weight = DefaultTimeWeight
	cfg.TimeAnomaly.StartHour = DefaultTimeStartHour
	cfg.TimeAnomaly.EndHour = DefaultTimeEndHour
	return cfg
}
