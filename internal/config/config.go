// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads server configuration from an optional YAML file and
// command-line flags. Flags win over the file; file wins over defaults.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Session store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// Config holds the gatehouse server configuration.
type Config struct {
	ListenAddr   string        `koanf:"listen-addr"`
	MetricsAddr  string        `koanf:"metrics-addr"`
	DatabaseURL  string        `koanf:"database-url"`
	RedisURL     string        `koanf:"redis-url"`
	SessionStore string        `koanf:"session-store"`
	TokenSecret  string        `koanf:"token-secret"`
	TokenTTL     time.Duration `koanf:"token-ttl"`
	SessionTTL   time.Duration `koanf:"session-ttl"`
	LogFormat    string        `koanf:"log-format"`
}

// Validate checks that the configuration is usable. The token secret is
// required: there is no safe default for a signing key.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("listen-addr is required")
	}
	if c.TokenSecret == "" {
		return oops.Code("CONFIG_INVALID").Errorf("token-secret is required")
	}
	switch c.SessionStore {
	case StorePostgres, StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("redis-url is required when session-store is redis")
		}
	default:
		return oops.Code("CONFIG_INVALID").Errorf("session-store must be postgres, redis, or memory, got %q", c.SessionStore)
	}
	if c.SessionStore == StorePostgres || c.SessionStore == StoreRedis {
		if c.DatabaseURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("database-url is required")
		}
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log-format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if c.TokenTTL <= 0 || c.SessionTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("token-ttl and session-ttl must be positive")
	}
	return nil
}

// Load builds a Config from the optional YAML file at path and the given
// flag set. Flag values that the user actually set override file values;
// flag defaults fill the gaps.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}

	// posflag consults the koanf instance so unchanged flag defaults do
	// not clobber file-provided values.
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}
	return cfg, nil
}
