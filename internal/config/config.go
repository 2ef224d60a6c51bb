// Package config loads the application configuration: where the record
// database lives, the default backend and timezone for new blogs, and the
// per-transport credentials.
//
// Settings come from a config file (TOML or YAML, found in the working
// directory or ~/.config/stardate unless a path is given) overridden by
// STARDATE_* environment variables. A bad setting is a configuration error
// and fails immediately; nothing here is retried or papered over.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/blturner/stardate/internal/blobstore"
)

// Config is the explicit configuration the CLI passes down; no component
// reads global state.
type Config struct {
	// DatabasePath is the SQLite record store location.
	DatabasePath string `mapstructure:"database_path"`

	// DefaultBackend is the blobstore kind assigned to new blogs.
	DefaultBackend string `mapstructure:"default_backend"`

	// DefaultTimezone is applied to pulled entries carrying no zone.
	DefaultTimezone string `mapstructure:"default_timezone"`

	Log  LogConfig  `mapstructure:"log"`
	S3   S3Config   `mapstructure:"s3"`
	Gist GistConfig `mapstructure:"gist"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// File, when set, receives rotated JSON logs in addition to stderr.
	// The watch daemon sets a default.
	File string `mapstructure:"file"`
}

// S3Config holds S3-compatible object storage credentials.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// GistConfig holds gist-backend settings.
type GistConfig struct {
	APIBase string `mapstructure:"api_base"`
	ID      string `mapstructure:"id"`
	Token   string `mapstructure:"token"`
}

// Load reads configuration from file (optional explicit path) and
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database_path", defaultDatabasePath())
	v.SetDefault("default_backend", blobstore.KindLocal)
	v.SetDefault("default_timezone", "UTC")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("STARDATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stardate")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "stardate"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing implicit config file is fine; an unreadable or
		// explicitly named one is not.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks for operator mistakes. These fail fast and loud.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	switch c.DefaultBackend {
	case blobstore.KindLocal, blobstore.KindS3, blobstore.KindGist, blobstore.KindMemory:
	default:
		return fmt.Errorf("unknown default_backend %q", c.DefaultBackend)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// BlobOptions maps the per-transport settings into blobstore form.
func (c *Config) BlobOptions() blobstore.Options {
	return blobstore.Options{
		S3Endpoint:  c.S3.Endpoint,
		S3AccessKey: c.S3.AccessKey,
		S3SecretKey: c.S3.SecretKey,
		S3Bucket:    c.S3.Bucket,
		S3UseSSL:    c.S3.UseSSL,
		GistAPIBase: c.Gist.APIBase,
		GistID:      c.Gist.ID,
		GistToken:   c.Gist.Token,
	}
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stardate/stardate.db"
	}
	return filepath.Join(home, ".stardate", "stardate.db")
}
