// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads and validates service configuration.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// ServerConfig holds the public HTTP listener settings.
type ServerConfig struct {
	Addr string `koanf:"addr"`
	// BaseURL is the externally visible URL used to build reset links,
	// e.g. "https://accounts.example.com".
	BaseURL string `koanf:"base_url"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// AuthConfig holds token issuance settings.
type AuthConfig struct {
	// JWTSecret signs both access and reset tokens (HS256).
	JWTSecret string `koanf:"jwt_secret"`
	// AccessTokenTTL bounds how long an issued access token stays valid.
	// Logout does not revoke tokens, so this is the effective session cap.
	AccessTokenTTL time.Duration `koanf:"access_token_ttl"`
}

// SMTPConfig holds outbound mail settings for reset links.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	StartTLS bool   `koanf:"starttls"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// AuditConfig holds the security audit trail settings.
type AuditConfig struct {
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
}

// LogConfig holds operational logging settings.
type LogConfig struct {
	Format string `koanf:"format"` // "json" or "text"
}

// ObservabilityConfig holds the metrics/health listener settings.
type ObservabilityConfig struct {
	Addr string `koanf:"addr"`
}

// Config is the root configuration for the service.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Auth          AuthConfig          `koanf:"auth"`
	SMTP          SMTPConfig          `koanf:"smtp"`
	Audit         AuditConfig         `koanf:"audit"`
	Log           LogConfig           `koanf:"log"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// Default returns the configuration defaults. File, flag, and environment
// values are layered on top.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:    ":8080",
			BaseURL: "http://localhost:8080",
		},
		Auth: AuthConfig{
			AccessTokenTTL: time.Hour,
		},
		SMTP: SMTPConfig{
			Port:     587,
			StartTLS: true,
		},
		Audit: AuditConfig{
			File:       "gatehouse-audit.log",
			MaxSizeMB:  5,
			MaxBackups: 5,
		},
		Log: LogConfig{
			Format: "json",
		},
		Observability: ObservabilityConfig{
			Addr: "127.0.0.1:9100",
		},
	}
}

// Load builds the configuration by layering, in order of increasing
// precedence: defaults, the YAML file at path (if non-empty), the given
// flag set (if non-nil), and secret environment variables.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides pulls secrets from the environment so they never need to
// live in the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("GATEHOUSE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("GATEHOUSE_SMTP_USERNAME"); v != "" {
		cfg.SMTP.Username = v
	}
	if v := os.Getenv("GATEHOUSE_SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
}

// Validate checks that the configuration is complete enough to serve.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.addr is required")
	}
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required (set DATABASE_URL)")
	}
	if c.Auth.JWTSecret == "" {
		return oops.Code("CONFIG_INVALID").Errorf("auth.jwt_secret is required (set GATEHOUSE_JWT_SECRET)")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.access_token_ttl must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if c.Audit.MaxSizeMB <= 0 || c.Audit.MaxBackups < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("audit rotation settings must be positive")
	}
	return nil
}
