package config

import (
	"fmt"
	"strings"

	"github.com/loglens-lab/project-loglens/internal/sketch"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Analytics AnalyticsConfig `koanf:"analytics"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type PipelineConfig struct {
	BatchSize     int `koanf:"batch_size"`
	MaxConcurrent int `koanf:"max_concurrent"`
	ChunkSizeKB   int `koanf:"chunk_size_kb"`
}

type AnalyticsConfig struct {
	Precision int `koanf:"precision"`
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be > 0")
	}
	if c.Pipeline.MaxConcurrent <= 0 {
		return fmt.Errorf("pipeline.max_concurrent must be > 0")
	}
	if c.Pipeline.ChunkSizeKB <= 0 {
		return fmt.Errorf("pipeline.chunk_size_kb must be > 0")
	}

	if c.Analytics.Precision < sketch.MinPrecision || c.Analytics.Precision > sketch.MaxPrecision {
		return fmt.Errorf("analytics.precision %d out of range [%d, %d]",
			c.Analytics.Precision, sketch.MinPrecision, sketch.MaxPrecision)
	}

	return nil
}

// Load parses config from defaults, an optional file and LOGLENS_ env vars,
// then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"server.max_body_size_mb": 1,
		"server.mode":             "release",
		"pipeline.batch_size":     100000,
		"pipeline.max_concurrent": 8,
		"pipeline.chunk_size_kb":  256,
		"analytics.precision":     sketch.DefaultPrecision,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("LOGLENS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "LOGLENS_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
