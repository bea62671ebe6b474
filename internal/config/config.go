// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

// Package config loads service configuration from defaults, an optional YAML
// file, and command-line flags, in that order of precedence.
package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Environments recognized by Validate.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DefaultTokenSecret signs tokens in development when no secret is
// configured. Production startup refuses to run with it.
const DefaultTokenSecret = "driftline-development-secret"

// Default listen addresses and formats.
const (
	DefaultHTTPAddr    = "127.0.0.1:8080"
	DefaultMetricsAddr = "127.0.0.1:9100"
	DefaultLogFormat   = "json"
)

// Config holds the service configuration. DatabaseURL comes from the
// DATABASE_URL environment variable only and never from file or flags.
type Config struct {
	Environment string `koanf:"environment"`
	HTTPAddr    string `koanf:"http-addr"`
	MetricsAddr string `koanf:"metrics-addr"`
	LogFormat   string `koanf:"log-format"`
	TokenSecret string `koanf:"token-secret"`
	DatabaseURL string `koanf:"-"`
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		HTTPAddr:    DefaultHTTPAddr,
		MetricsAddr: DefaultMetricsAddr,
		LogFormat:   DefaultLogFormat,
	}
}

// Load merges defaults, the YAML file at path (when non-empty), and changed
// flags from the given flag set. DATABASE_URL is read from the environment.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "merge flags").
				Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("operation", "unmarshal").
			Wrap(err)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	if cfg.TokenSecret == "" && cfg.Environment != EnvProduction {
		cfg.TokenSecret = DefaultTokenSecret
	}

	return cfg, nil
}

// Validate checks the configuration. Production requires an explicitly
// configured token secret; the development default is rejected there so a
// deployment cannot silently sign tokens with a public value.
func (c *Config) Validate() error {
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return oops.Code("CONFIG_INVALID").
			With("environment", c.Environment).
			Errorf("environment must be %q or %q", EnvDevelopment, EnvProduction)
	}
	if c.HTTPAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("http-addr is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			With("log_format", c.LogFormat).
			Errorf("log-format must be 'json' or 'text'")
	}
	if c.Environment == EnvProduction {
		if c.TokenSecret == "" || c.TokenSecret == DefaultTokenSecret {
			return oops.Code("CONFIG_INVALID").
				Errorf("token-secret must be explicitly set in production")
		}
	}
	if c.TokenSecret == "" {
		return oops.Code("CONFIG_INVALID").Errorf("token-secret is required")
	}
	return nil
}
