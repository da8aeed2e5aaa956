package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.LearningRate != 0.01 {
		t.Fatalf("unexpected learning rate %g", cfg.LearningRate)
	}
	if cfg.NEpochs != 100 || cfg.BatchSize != 20 {
		t.Fatalf("unexpected epochs/batch size %d/%d", cfg.NEpochs, cfg.BatchSize)
	}
	if cfg.Patience != 5000 || cfg.PatienceIncrease != 2 {
		t.Fatalf("unexpected patience %d/%d", cfg.Patience, cfg.PatienceIncrease)
	}
	if cfg.ImprovementThreshold != 0.995 {
		t.Fatalf("unexpected improvement threshold %g", cfg.ImprovementThreshold)
	}
	if cfg.ValidationFrequency != 2500 {
		t.Fatalf("unexpected validation frequency %d", cfg.ValidationFrequency)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	body := "data_dir: /tmp/mnist\nlearning_rate: 0.1\nbatch_size: 50\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/tmp/mnist" || cfg.LearningRate != 0.1 || cfg.BatchSize != 50 {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	// unset keys keep their defaults
	if cfg.Patience != 5000 || cfg.ValidationFrequency != 2500 {
		t.Fatalf("defaults not preserved: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	if err := os.WriteFile(path, []byte("improvement_threshold: 1.5\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for threshold > 1")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.ApplyOverrides(Overrides{
		DataDir:              "elsewhere",
		NEpochs:              7,
		PatienceIncrease:     3,
		ImprovementThreshold: 0.9,
	})
	if cfg.DataDir != "elsewhere" || cfg.NEpochs != 7 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.PatienceIncrease != 3 || cfg.ImprovementThreshold != 0.9 {
		t.Fatalf("early-stopping overrides not applied: %+v", cfg)
	}
	if cfg.BatchSize != 20 {
		t.Fatalf("zero override clobbered batch size: %d", cfg.BatchSize)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"zero learning rate", func(c *Config) { c.LearningRate = 0 }},
		{"zero epochs", func(c *Config) { c.NEpochs = 0 }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"zero patience", func(c *Config) { c.Patience = 0 }},
		{"zero patience increase", func(c *Config) { c.PatienceIncrease = 0 }},
		{"zero threshold", func(c *Config) { c.ImprovementThreshold = 0 }},
		{"threshold above one", func(c *Config) { c.ImprovementThreshold = 1.01 }},
		{"zero validation frequency", func(c *Config) { c.ValidationFrequency = 0 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
