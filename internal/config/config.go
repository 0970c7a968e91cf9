// Package config loads heartrisk settings from defaults, an optional YAML
// file, an optional .env file and HEARTRISK_* environment variables, in
// increasing order of precedence.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/heartrisk/internal/dataset"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
	"github.com/YuminosukeSato/heartrisk/sklearn/gbdt"
)

// ConfigFileEnv names the variable holding the YAML path when none is given explicitly.
const ConfigFileEnv = "CONFIG_FILE"

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Data     DataConfig     `yaml:"data"`
	Training TrainingConfig `yaml:"training"`
	Model    ModelConfig    `yaml:"model"`
	Registry RegistryConfig `yaml:"registry"`
	Server   ServerConfig   `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"HEARTRISK_LOG_LEVEL"`
	Format string `yaml:"format" env:"HEARTRISK_LOG_FORMAT"` // json or console
}

type DataConfig struct {
	Path           string   `yaml:"path" env:"HEARTRISK_DATA_PATH"`
	Target         string   `yaml:"target" env:"HEARTRISK_DATA_TARGET"`
	DropColumns    []string `yaml:"dropColumns" env:"HEARTRISK_DATA_DROP_COLUMNS"`
	ExcludeColumns []string `yaml:"excludeColumns" env:"HEARTRISK_DATA_EXCLUDE_COLUMNS"`
	// PositiveLabel binarizes a non-0/1 target; empty means the target is already 0/1.
	PositiveLabel string `yaml:"positiveLabel" env:"HEARTRISK_DATA_POSITIVE_LABEL"`
}

type TrainingConfig struct {
	Folds   int                 `yaml:"folds" env:"HEARTRISK_TRAINING_FOLDS"`
	Shuffle bool                `yaml:"shuffle" env:"HEARTRISK_TRAINING_SHUFFLE"`
	Workers int                 `yaml:"workers" env:"HEARTRISK_TRAINING_WORKERS"`
	Params  gbdt.TrainingParams `yaml:"params"`
}

type ModelConfig struct {
	Path string `yaml:"path" env:"HEARTRISK_MODEL_PATH"`
}

type RegistryConfig struct {
	Path string `yaml:"path" env:"HEARTRISK_REGISTRY_PATH"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"HEARTRISK_SERVER_ADDR"`
	ReadTimeout     time.Duration `yaml:"readTimeout" env:"HEARTRISK_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" env:"HEARTRISK_SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"HEARTRISK_SERVER_SHUTDOWN_TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() Config {
	opts := dataset.DefaultOptions()
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Data: DataConfig{
			Path:           "heart_disease.csv",
			Target:         opts.Target,
			DropColumns:    opts.DropColumns,
			ExcludeColumns: opts.ExcludeColumns,
		},
		Training: TrainingConfig{
			Folds:   10,
			Shuffle: true,
			Workers: 1,
			Params:  gbdt.DefaultParams(),
		},
		Model:    ModelConfig{Path: "models/heart_model.bin"},
		Registry: RegistryConfig{Path: "data/runs.db"},
		Server: ServerConfig{
			Addr:            ":5001",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
	}
}

// Load builds the configuration. path may be empty, in which case CONFIG_FILE
// is consulted; with neither set only defaults and the environment apply.
// A .env file in the working directory is loaded if present and never
// overrides variables already set in the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse environment overrides")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return &cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.NewValidationError("log.format", "must be json or console", c.Log.Format)
	}
	if c.Training.Folds < 2 {
		return errors.NewValidationError("training.folds", "must be at least 2", c.Training.Folds)
	}
	if c.Training.Workers < 1 {
		return errors.NewValidationError("training.workers", "must be at least 1", c.Training.Workers)
	}
	if err := c.Training.Params.Validate(); err != nil {
		return err
	}
	if c.Data.Target == "" {
		return errors.NewMissingFieldError("data.target")
	}
	if c.Data.PositiveLabel != "" {
		if _, err := strconv.ParseFloat(c.Data.PositiveLabel, 64); err != nil {
			return errors.NewValidationError("data.positiveLabel", "must be numeric", c.Data.PositiveLabel)
		}
	}
	if c.Model.Path == "" {
		return errors.NewMissingFieldError("model.path")
	}
	if c.Registry.Path == "" {
		return errors.NewMissingFieldError("registry.path")
	}
	if c.Server.Addr == "" {
		return errors.NewMissingFieldError("server.addr")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return errors.NewValidationError("server", "timeouts must be positive", nil)
	}
	return nil
}

// DatasetOptions converts the data section into loader options.
func (c *Config) DatasetOptions() dataset.Options {
	opts := dataset.Options{
		Target:         c.Data.Target,
		DropColumns:    c.Data.DropColumns,
		ExcludeColumns: c.Data.ExcludeColumns,
	}
	if c.Data.PositiveLabel != "" {
		// validated in Validate
		v, _ := strconv.ParseFloat(c.Data.PositiveLabel, 64)
		opts.PositiveLabel = &v
	}
	return opts
}
