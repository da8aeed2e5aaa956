package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config captures the hyperparameters for a training run.
type Config struct {
	DataDir              string  `yaml:"data_dir"`
	LearningRate         float64 `yaml:"learning_rate"`
	NEpochs              int     `yaml:"n_epochs"`
	BatchSize            int     `yaml:"batch_size"`
	Patience             int     `yaml:"patience"`
	PatienceIncrease     int     `yaml:"patience_increase"`
	ImprovementThreshold float64 `yaml:"improvement_threshold"`
	ValidationFrequency  int     `yaml:"validation_frequency"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	DataDir              string
	LearningRate         float64
	NEpochs              int
	BatchSize            int
	Patience             int
	PatienceIncrease     int
	ImprovementThreshold float64
	ValidationFrequency  int
}

// Default returns the canonical hyperparameters.
func Default() *Config {
	return &Config{
		DataDir:              "data",
		LearningRate:         0.01,
		NEpochs:              100,
		BatchSize:            20,
		Patience:             5000,
		PatienceIncrease:     2,
		ImprovementThreshold: 0.995,
		ValidationFrequency:  2500,
	}
}

// Load reads a Config from YAML, filling unset keys with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.NEpochs > 0 {
		c.NEpochs = o.NEpochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Patience > 0 {
		c.Patience = o.Patience
	}
	if o.PatienceIncrease > 0 {
		c.PatienceIncrease = o.PatienceIncrease
	}
	if o.ImprovementThreshold > 0 {
		c.ImprovementThreshold = o.ImprovementThreshold
	}
	if o.ValidationFrequency > 0 {
		c.ValidationFrequency = o.ValidationFrequency
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if c.LearningRate <= 0 {
		return errors.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.NEpochs <= 0 {
		return errors.Errorf("n_epochs must be > 0 (got %d)", c.NEpochs)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.Patience <= 0 {
		return errors.Errorf("patience must be > 0 (got %d)", c.Patience)
	}
	if c.PatienceIncrease < 1 {
		return errors.Errorf("patience_increase must be >= 1 (got %d)", c.PatienceIncrease)
	}
	if c.ImprovementThreshold <= 0 || c.ImprovementThreshold > 1 {
		return errors.Errorf("improvement_threshold must be in (0, 1] (got %g)", c.ImprovementThreshold)
	}
	if c.ValidationFrequency <= 0 {
		return errors.Errorf("validation_frequency must be > 0 (got %d)", c.ValidationFrequency)
	}
	return nil
}
