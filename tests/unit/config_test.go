package unit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/securebank/scoring-engine/internal/app/bootstrap"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := bootstrap.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing config file must fall back to defaults: %v", err)
	}
	if cfg.HTTPPort != 8080 || cfg.GRPCPort != 9090 {
		t.Fatalf("unexpected default ports: %d/%d", cfg.HTTPPort, cfg.GRPCPort)
	}
	if cfg.KafkaTopicTransaction != "transactions.raw" {
		t.Fatalf("unexpected default topic: %q", cfg.KafkaTopicTransaction)
	}
	if cfg.Scoring.FraudThreshold != 0.8 {
		t.Fatalf("unexpected default fraud threshold: %v", cfg.Scoring.FraudThreshold)
	}
	if cfg.Scoring.Velocity.Threshold != 5 || cfg.Scoring.Velocity.Window != time.Hour {
		t.Fatalf("unexpected default velocity config: %+v", cfg.Scoring.Velocity)
	}
	if cfg.WindowMaxAge != 24*time.Hour || cfg.WindowMaxEntries != 100 {
		t.Fatalf("unexpected default window bounds: %v/%d", cfg.WindowMaxAge, cfg.WindowMaxEntries)
	}
}

func TestLoadConfigFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
service:
  id: fraud-scoring-test
  http_port: 9999
dependencies:
  kafka_brokers: [broker-1:9092, broker-2:9092]
  kafka_topic_transactions: txn.input
pipeline:
  max_attempts: 7
scoring:
  fraud_threshold: 0.6
  velocity:
    threshold: 3
    window_minutes: 30
  time_anomaly:
    start_hour: 7
    end_hour: 23
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := bootstrap.LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceID != "fraud-scoring-test" || cfg.HTTPPort != 9999 {
		t.Fatalf("service overrides not applied: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaTopicTransaction != "txn.input" {
		t.Fatalf("kafka overrides not applied: %+v", cfg)
	}
	if cfg.MaxAttempts != 7 {
		t.Fatalf("pipeline overrides not applied: %d", cfg.MaxAttempts)
	}
	if cfg.Scoring.FraudThreshold != 0.6 || cfg.Scoring.Velocity.Threshold != 3 ||
		cfg.Scoring.Velocity.Window != 30*time.Minute {
		t.Fatalf("scoring overrides not applied: %+v", cfg.Scoring)
	}
	if cfg.Scoring.TimeAnomaly.StartHour != 7 || cfg.Scoring.TimeAnomaly.EndHour != 23 {
		t.Fatalf("time anomaly overrides not applied: %+v", cfg.Scoring.TimeAnomaly)
	}
	// Untouched values keep their defaults.
	if cfg.Scoring.AmountAnomaly.Multiplier != 3.0 {
		t.Fatalf("untouched scoring defaults must survive: %+v", cfg.Scoring.AmountAnomaly)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "env-broker:9092")
	t.Setenv("FRAUD_THRESHOLD", "0.9")
	t.Setenv("VELOCITY_THRESHOLD", "8")

	cfg, err := bootstrap.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "env-broker:9092" {
		t.Fatalf("env broker override not applied: %v", cfg.KafkaBrokers)
	}
	if cfg.Scoring.FraudThreshold != 0.9 || cfg.Scoring.Velocity.Threshold != 8 {
		t.Fatalf("env scoring overrides not applied: %+v", cfg.Scoring)
	}
}

func TestLoadConfigRejectsInvalidThreshold(t *testing.T) {
	t.Setenv("FRAUD_THRESHOLD", "1.5")
	if _, err := bootstrap.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for out-of-range fraud threshold")
	}
}
