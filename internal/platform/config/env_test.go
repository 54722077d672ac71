package config

import (
	"strings"
	"testing"
	"time"
)

type envTestConfig struct {
	Port          int           `env:"SAFEZONE_TEST_PORT" envDefault:"123"`
	SweepInterval time.Duration `env:"SAFEZONE_TEST_SWEEP" envDefault:"1m"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig

	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Port != 123 {
		t.Fatalf("expected default port 123, got %d", cfg.Port)
	}
	if cfg.SweepInterval != time.Minute {
		t.Fatalf("expected default sweep 1m, got %s", cfg.SweepInterval)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("SAFEZONE_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}
