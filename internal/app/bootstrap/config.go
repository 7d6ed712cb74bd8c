package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/securebank/scoring-engine/internal/scoring"
)

type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL           string
	RedisURL              string
	KafkaBrokers          []string
	KafkaConsumerGroup    string
	KafkaTopicTransaction string
	KafkaTopicDeadLetter  string
	ArchiveDir            string

	MaxDBConns      int32
	ProfileCacheTTL time.Duration

	StoreTimeout          time.Duration
	ProfileUpdateAttempts int
	WindowMaxAge          time.Duration
	WindowMaxEntries      int

	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	PartitionQueueSize int

	Scoring scoring.Config
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL           string   `yaml:"postgres_url"`
		RedisURL              string   `yaml:"redis_url"`
		KafkaBrokers          []string `yaml:"kafka_brokers"`
		KafkaConsumerGroup    string   `yaml:"kafka_consumer_group"`
		KafkaTopicTransaction string   `yaml:"kafka_topic_transactions"`
		KafkaTopicDeadLetter  string   `yaml:"kafka_topic_dead_letters"`
		ArchiveDir            string   `yaml:"archive_dir"`
	} `yaml:"dependencies"`
	Pipeline struct {
		StoreTimeoutSeconds   int `yaml:"store_timeout_seconds"`
		ProfileUpdateAttempts int `yaml:"profile_update_attempts"`
		WindowMaxAgeHours     int `yaml:"window_max_age_hours"`
		WindowMaxEntries      int `yaml:"window_max_entries"`
		MaxAttempts           int `yaml:"max_attempts"`
		RetryBaseDelayMillis  int `yaml:"retry_base_delay_ms"`
		RetryMaxDelaySeconds  int `yaml:"retry_max_delay_seconds"`
		PartitionQueueSize    int `yaml:"partition_queue_size"`
	} `yaml:"pipeline"`
	Scoring struct {
		FraudThreshold float64 `yaml:"fraud_threshold"`
		Velocity       struct {
			Weight        float64 `yaml:"weight"`
			Threshold     int     `yaml:"threshold"`
			WindowMinutes int     `yaml:"window_minutes"`
		} `yaml:"velocity"`
		AmountAnomaly struct {
			Weight     float64 `yaml:"weight"`
			Multiplier float64 `yaml:"multiplier"`
		} `yaml:"amount_anomaly"`
		LocationAnomaly struct {
			Weight        float64 `yaml:"weight"`
			DistanceMiles float64 `yaml:"distance_miles"`
			MaxSpeedMPH   float64 `yaml:"max_speed_mph"`
		} `yaml:"location_anomaly"`
		TimeAnomaly struct {
			Weight    float64 `yaml:"weight"`
			StartHour *int    `yaml:"start_hour"`
			EndHour   *int    `yaml:"end_hour"`
		} `yaml:"time_anomaly"`
	} `yaml:"scoring"`
}

// LoadConfig layers defaults, then the optional yaml file, then environment
// overrides. Postgres, Redis, and Kafka are all optional: the runtime
// degrades to in-memory adapters for whatever is left unset, which is how
// local development runs.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:             "fraud-scoring-engine",
		HTTPPort:              8080,
		GRPCPort:              9090,
		KafkaConsumerGroup:    "fraud-scoring-engine",
		KafkaTopicTransaction: "transactions.raw",
		KafkaTopicDeadLetter:  "transactions.dead-letter",
		ArchiveDir:            "archive",
		MaxDBConns:            20,
		ProfileCacheTTL:       5 * time.Minute,
		StoreTimeout:          5 * time.Second,
		ProfileUpdateAttempts: 5,
		WindowMaxAge:          24 * time.Hour,
		WindowMaxEntries:      100,
		MaxAttempts:           4,
		RetryBaseDelay:        200 * time.Millisecond,
		RetryMaxDelay:         10 * time.Second,
		PartitionQueueSize:    32,
		Scoring:               scoring.DefaultConfig(),
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		applyFile(&cfg, f)
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = envOrDefault("KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)
	cfg.KafkaTopicTransaction = envOrDefault("KAFKA_TOPIC_TRANSACTIONS", cfg.KafkaTopicTransaction)
	cfg.KafkaTopicDeadLetter = envOrDefault("KAFKA_TOPIC_DEAD_LETTERS", cfg.KafkaTopicDeadLetter)
	cfg.ArchiveDir = envOrDefault("ARCHIVE_DIR", cfg.ArchiveDir)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.ProfileCacheTTL = time.Duration(envInt("PROFILE_CACHE_SECONDS", int(cfg.ProfileCacheTTL.Seconds()))) * time.Second
	cfg.StoreTimeout = time.Duration(envInt("STORE_TIMEOUT_SECONDS", int(cfg.StoreTimeout.Seconds()))) * time.Second
	cfg.ProfileUpdateAttempts = envInt("PROFILE_UPDATE_ATTEMPTS", cfg.ProfileUpdateAttempts)
	cfg.WindowMaxAge = time.Duration(envInt("WINDOW_MAX_AGE_HOURS", int(cfg.WindowMaxAge.Hours()))) * time.Hour
	cfg.WindowMaxEntries = envInt("WINDOW_MAX_ENTRIES", cfg.WindowMaxEntries)
	cfg.MaxAttempts = envInt("MAX_PROCESSING_ATTEMPTS", cfg.MaxAttempts)
	cfg.RetryBaseDelay = time.Duration(envInt("RETRY_BASE_DELAY_MS", int(cfg.RetryBaseDelay.Milliseconds()))) * time.Millisecond
	cfg.RetryMaxDelay = time.Duration(envInt("RETRY_MAX_DELAY_SECONDS", int(cfg.RetryMaxDelay.Seconds()))) * time.Second
	cfg.PartitionQueueSize = envInt("PARTITION_QUEUE_SIZE", cfg.PartitionQueueSize)
	cfg.Scoring.FraudThreshold = envFloat("FRAUD_THRESHOLD", cfg.Scoring.FraudThreshold)
	cfg.Scoring.Velocity.Threshold = envInt("VELOCITY_THRESHOLD", cfg.Scoring.Velocity.Threshold)
	cfg.Scoring.AmountAnomaly.Multiplier = envFloat("AMOUNT_MULTIPLIER", cfg.Scoring.AmountAnomaly.Multiplier)

	if cfg.Scoring.FraudThreshold <= 0 || cfg.Scoring.FraudThreshold > 1 {
		return Config{}, fmt.Errorf("fraud threshold %v out of (0, 1]", cfg.Scoring.FraudThreshold)
	}
	if cfg.Scoring.TimeAnomaly.StartHour < 0 || cfg.Scoring.TimeAnomaly.EndHour > 24 ||
		cfg.Scoring.TimeAnomaly.StartHour >= cfg.Scoring.TimeAnomaly.EndHour {
		return Config{}, fmt.Errorf("invalid normal-hours range [%d, %d)",
			cfg.Scoring.TimeAnomaly.StartHour, cfg.Scoring.TimeAnomaly.EndHour)
	}
	return cfg, nil
}

func applyFile(cfg *Config, f configFile) {
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
	}
	if f.Dependencies.KafkaConsumerGroup != "" {
		cfg.KafkaConsumerGroup = f.Dependencies.KafkaConsumerGroup
	}
	if f.Dependencies.KafkaTopicTransaction != "" {
		cfg.KafkaTopicTransaction = f.Dependencies.KafkaTopicTransaction
	}
	if f.Dependencies.KafkaTopicDeadLetter != "" {
		cfg.KafkaTopicDeadLetter = f.Dependencies.KafkaTopicDeadLetter
	}
	if f.Dependencies.ArchiveDir != "" {
		cfg.ArchiveDir = f.Dependencies.ArchiveDir
	}
	if f.Pipeline.StoreTimeoutSeconds > 0 {
		cfg.StoreTimeout = time.Duration(f.Pipeline.StoreTimeoutSeconds) * time.Second
	}
	if f.Pipeline.ProfileUpdateAttempts > 0 {
		cfg.ProfileUpdateAttempts = f.Pipeline.ProfileUpdateAttempts
	}
	if f.Pipeline.WindowMaxAgeHours > 0 {
		cfg.WindowMaxAge = time.Duration(f.Pipeline.WindowMaxAgeHours) * time.Hour
	}
	if f.Pipeline.WindowMaxEntries > 0 {
		cfg.WindowMaxEntries = f.Pipeline.WindowMaxEntries
	}
	if f.Pipeline.MaxAttempts > 0 {
		cfg.MaxAttempts = f.Pipeline.MaxAttempts
	}
	if f.Pipeline.RetryBaseDelayMillis > 0 {
		cfg.RetryBaseDelay = time.Duration(f.Pipeline.RetryBaseDelayMillis) * time.Millisecond
	}
	if f.Pipeline.RetryMaxDelaySeconds > 0 {
		cfg.RetryMaxDelay = time.Duration(f.Pipeline.RetryMaxDelaySeconds) * time.Second
	}
	if f.Pipeline.PartitionQueueSize > 0 {
		cfg.PartitionQueueSize = f.Pipeline.PartitionQueueSize
	}
	if f.Scoring.FraudThreshold > 0 {
		cfg.Scoring.FraudThreshold = f.Scoring.FraudThreshold
	}
	if f.Scoring.Velocity.Weight > 0 {
		cfg.Scoring.Velocity.Weight = f.Scoring.Velocity.Weight
	}
	if f.Scoring.Velocity.Threshold > 0 {
		cfg.Scoring.Velocity.Threshold = f.Scoring.Velocity.Threshold
	}
	if f.Scoring.Velocity.WindowMinutes > 0 {
		cfg.Scoring.Velocity.Window = time.Duration(f.Scoring.Velocity.WindowMinutes) * time.Minute
	}
	if f.Scoring.AmountAnomaly.Weight > 0 {
		cfg.Scoring.AmountAnomaly.Weight = f.Scoring.AmountAnomaly.Weight
	}
	if f.Scoring.AmountAnomaly.Multiplier > 0 {
		cfg.Scoring.AmountAnomaly.Multiplier = f.Scoring.AmountAnomaly.Multiplier
	}
	if f.Scoring.LocationAnomaly.Weight > 0 {
		cfg.Scoring.LocationAnomaly.Weight = f.Scoring.LocationAnomaly.Weight
	}
	if f.Scoring.LocationAnomaly.DistanceMiles > 0 {
		cfg.Scoring.LocationAnomaly.DistanceMiles = f.Scoring.LocationAnomaly.DistanceMiles
	}
	if f.Scoring.LocationAnomaly.MaxSpeedMPH > 0 {
		cfg.Scoring.LocationAnomaly.MaxSpeedMPH = f.Scoring.LocationAnomaly.MaxSpeedMPH
	}
	if f.Scoring.TimeAnomaly.Weight > 0 {
		cfg.Scoring.TimeAnomaly.Weight = f.Scoring.TimeAnomaly.Weight
	}
	if f.Scoring.TimeAnomaly.StartHour != nil {
		cfg.Scoring.TimeAnomaly.StartHour = *f.Scoring.TimeAnomaly.StartHour
	}
	if f.Scoring.TimeAnomaly.EndHour != nil {
		cfg.Scoring.TimeAnomaly.EndHour = *f.Scoring.TimeAnomaly.EndHour
	}
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return trimNonEmpty(strings.Split(raw, ","))
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
