package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMinimal(t *testing.T) {
	path := writeConfig(t, `
s3:
  bucket: archive-bucket
local:
  path: /var/lib/secor
kafka:
  group: secor_backup
  topics: [orders]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.S3.Bucket != "archive-bucket" {
		t.Fatalf("unexpected bucket: %s", cfg.S3.Bucket)
	}
	if cfg.Parser.Class != "timestamped" {
		t.Fatalf("expected default parser class, got %s", cfg.Parser.Class)
	}
	if cfg.Codec.Format != "delimited" {
		t.Fatalf("expected default codec format, got %s", cfg.Codec.Format)
	}
	if cfg.Offsets.PerPartition != 10000 {
		t.Fatalf("expected default offsets per partition, got %d", cfg.Offsets.PerPartition)
	}
}

func TestLoadMissingBucket(t *testing.T) {
	path := writeConfig(t, `
local:
  path: /var/lib/secor
kafka:
  group: secor_backup
  topics: [orders]
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing s3.bucket")
	}
}

func TestLoadOrcRequiresSchema(t *testing.T) {
	path := writeConfig(t, `
s3:
  bucket: archive-bucket
local:
  path: /var/lib/secor
kafka:
  group: secor_backup
  topics: [orders]
codec:
  format: orc
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error when orc format has no schemas")
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, `
s3:
  bucket: archive-bucket
local:
  path: /var/lib/secor
kafka:
  group: secor_backup
  topics: [orders]
`)
	t.Setenv("SECOR_S3_ACCESS_KEY_ID", "AKIDEXAMPLE")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.S3.AccessKeyID != "AKIDEXAMPLE" {
		t.Fatalf("expected env override to apply, got %q", cfg.S3.AccessKeyID)
	}
}
