package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.DatabasePath == "" {
		t.Error("default database path is empty")
	}
	if cfg.DefaultBackend != "local" {
		t.Errorf("default backend = %q, want %q", cfg.DefaultBackend, "local")
	}
	if cfg.DefaultTimezone != "UTC" {
		t.Errorf("default timezone = %q, want %q", cfg.DefaultTimezone, "UTC")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stardate.toml")
	content := `database_path = "/tmp/test.db"
default_backend = "s3"
default_timezone = "US/Eastern"

[s3]
endpoint = "localhost:9000"
bucket = "blogs"
access_key = "ak"
secret_key = "sk"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("database path = %q", cfg.DatabasePath)
	}
	if cfg.DefaultBackend != "s3" {
		t.Errorf("default backend = %q", cfg.DefaultBackend)
	}

	opts := cfg.BlobOptions()
	if opts.S3Endpoint != "localhost:9000" || opts.S3Bucket != "blogs" {
		t.Errorf("blob options = %+v", opts)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() of a missing explicit config file succeeded")
	}
}

func TestValidate(t *testing.T) {
	bad := &Config{DatabasePath: "/tmp/x.db", DefaultBackend: "carrier-pigeon"}
	if err := bad.Validate(); err == nil {
		t.Error("Validate() accepted an unknown backend")
	}

	noDB := &Config{DefaultBackend: "local"}
	if err := noDB.Validate(); err == nil {
		t.Error("Validate() accepted an empty database path")
	}

	badLevel := &Config{DatabasePath: "/tmp/x.db", DefaultBackend: "local",
		Log: LogConfig{Level: "loud"}}
	if err := badLevel.Validate(); err == nil {
		t.Error("Validate() accepted an unknown log level")
	}
}
