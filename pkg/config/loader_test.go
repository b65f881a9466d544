package config

import (
	"testing"
	"time"
)

type testConfig struct {
	Port     int           `env:"TEST_AUTH_PORT" envDefault:"8080"`
	LogLevel string        `env:"TEST_AUTH_LOG_LEVEL" envDefault:"info"`
	Window   time.Duration `env:"TEST_AUTH_WINDOW" envDefault:"15m"`
	Brokers  []string      `env:"TEST_AUTH_BROKERS" envDefault:"localhost:9092" envSeparator:","`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	if err := Load(&cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.Window != 15*time.Minute {
		t.Errorf("Window = %v, want 15m", cfg.Window)
	}
	if len(cfg.Brokers) != 1 || cfg.Brokers[0] != "localhost:9092" {
		t.Errorf("Brokers = %v", cfg.Brokers)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TEST_AUTH_PORT", "9191")
	t.Setenv("TEST_AUTH_WINDOW", "30s")
	t.Setenv("TEST_AUTH_BROKERS", "k1:9092,k2:9092")

	var cfg testConfig
	if err := Load(&cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9191 {
		t.Errorf("Port = %d, want 9191", cfg.Port)
	}
	if cfg.Window != 30*time.Second {
		t.Errorf("Window = %v, want 30s", cfg.Window)
	}
	if len(cfg.Brokers) != 2 {
		t.Errorf("Brokers = %v, want two entries", cfg.Brokers)
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("TEST_AUTH_PORT", "not-a-number")

	var cfg testConfig
	if err := Load(&cfg); err == nil {
		t.Fatal("Load should fail on unparseable value")
	}
}
