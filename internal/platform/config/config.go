// Package config loads process configuration from SAMPLETRACK_* environment
// variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the runtime configuration of the sampletrack binaries.
type Config struct {
	StorageDriver string `env:"SAMPLETRACK_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"SAMPLETRACK_SQLITE_PATH" envDefault:"sampletrack.db"`
	PostgresDSN   string `env:"SAMPLETRACK_POSTGRES_DSN"`

	Blob Blob `envPrefix:"SAMPLETRACK_BLOB_"`

	OTelEndpoint string `env:"SAMPLETRACK_OTEL_ENDPOINT"`
	LogLevel     string `env:"SAMPLETRACK_LOG_LEVEL" envDefault:"info"`
}

// Blob configures the history archive store.
type Blob struct {
	Driver string `env:"DRIVER" envDefault:"fs"`
	FSRoot string `env:"FS_ROOT" envDefault:"./blobdata"`

	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3PathStyle bool   `env:"S3_PATH_STYLE" envDefault:"false"`

	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses a Config and validates its enumerations.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	switch cfg.StorageDriver {
	case "memory", "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
	switch cfg.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if cfg.Blob.S3Bucket == "" {
			return Config{}, fmt.Errorf("SAMPLETRACK_BLOB_S3_BUCKET required for s3 blob driver")
		}
	default:
		return Config{}, fmt.Errorf("unknown blob driver %q", cfg.Blob.Driver)
	}
	return cfg, nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
