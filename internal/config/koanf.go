// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/logflux/config.yaml",
	"/etc/logflux/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envKeyMap maps the flat environment variable names documented for the
// service onto koanf paths. Variables not in this map are ignored, so
// unrelated environment noise cannot leak into the configuration.
var envKeyMap = map[string]string{
	"DATABASE_URL":            "database.url",
	"DATABASE_MAX_CONNS":      "database.max_conns",
	"RETENTION_DAYS":          "database.retention_days",
	"REDIS_HOST":              "redis.host",
	"REDIS_PORT":              "redis.port",
	"REDIS_USER":              "redis.user",
	"REDIS_PASSWORD":          "redis.password",
	"REDIS_DB":                "redis.db",
	"LOG_BASE_PATH":           "tailer.base_path",
	"POLL_INTERVAL":           "tailer.poll_interval",
	"MAX_WORKERS":             "tailer.max_workers",
	"MAX_FRAME_BYTES":         "tailer.max_frame_bytes",
	"LOG_FILE_RETENTION_DAYS": "cache.retention_days",
	"CACHE_TTL":               "cache.query_ttl",
	"LOG_BATCH_SIZE":          "ingest.batch_size",
	"SPILL_DIR":               "ingest.spill_dir",
	"CORS_ORIGINS":            "server.cors_origins",
	"HOST":                    "server.host",
	"PORT":                    "server.port",
	"LOG_LEVEL":               "logging.level",
	"LOG_FORMAT":              "logging.format",
	"LOG_CALLER":              "logging.caller",
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, in increasing priority.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct.
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file.
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority).
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// CORS_ORIGINS arrives as one comma-separated string.
	if raw := k.String("server.cors_origins"); raw != "" && strings.Contains(raw, ",") {
		if err := k.Set("server.cors_origins", splitCSV(raw)); err != nil {
			return nil, fmt.Errorf("failed to split cors origins: %w", err)
		}
	}

	// CACHE_TTL is documented in whole seconds; normalize bare integers so
	// both "300" and "5m" parse.
	if raw := k.String("cache.query_ttl"); raw != "" && !strings.ContainsAny(raw, "smhµn") {
		if err := k.Set("cache.query_ttl", raw+"s"); err != nil {
			return nil, fmt.Errorf("failed to normalize cache ttl: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransformFunc maps flat env names to koanf paths via envKeyMap.
// Returning "" drops the variable.
func envTransformFunc(key string) string {
	return envKeyMap[key]
}

// findConfigFile returns the first existing config file path, honoring the
// CONFIG_PATH override.
func findConfigFile() string {
	if override := os.Getenv(ConfigPathEnvVar); override != "" {
		if _, err := os.Stat(override); err == nil {
			return override
		}
		return ""
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// splitCSV splits a comma-separated value, trimming whitespace and dropping
// empty items.
func splitCSV(value string) []string {
	var result []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
