package config

import (
	"log/slog"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageDriver != "sqlite" || cfg.SQLitePath != "sampletrack.db" {
		t.Fatalf("unexpected storage defaults %+v", cfg)
	}
	if cfg.Blob.Driver != "fs" || cfg.Blob.FSRoot != "./blobdata" || cfg.Blob.S3Region != "us-east-1" {
		t.Fatalf("unexpected blob defaults %+v", cfg.Blob)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Fatalf("expected info level")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SAMPLETRACK_STORAGE_DRIVER", "postgres")
	t.Setenv("SAMPLETRACK_POSTGRES_DSN", "postgres://db/sampletrack")
	t.Setenv("SAMPLETRACK_BLOB_DRIVER", "s3")
	t.Setenv("SAMPLETRACK_BLOB_S3_BUCKET", "archives")
	t.Setenv("SAMPLETRACK_BLOB_S3_PATH_STYLE", "true")
	t.Setenv("SAMPLETRACK_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageDriver != "postgres" || cfg.PostgresDSN != "postgres://db/sampletrack" {
		t.Fatalf("unexpected storage %+v", cfg)
	}
	if cfg.Blob.S3Bucket != "archives" || !cfg.Blob.S3PathStyle {
		t.Fatalf("unexpected blob %+v", cfg.Blob)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level")
	}
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	t.Setenv("SAMPLETRACK_STORAGE_DRIVER", "mongo")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "storage driver") {
		t.Fatalf("expected storage driver error, got %v", err)
	}
	t.Setenv("SAMPLETRACK_STORAGE_DRIVER", "memory")
	t.Setenv("SAMPLETRACK_BLOB_DRIVER", "s3")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "S3_BUCKET") {
		t.Fatalf("expected bucket error, got %v", err)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("SAMPLETRACK_BLOB_S3_PATH_STYLE", "not-a-bool")
	var cfg Config
	err := ParseEnv(&cfg)
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}
