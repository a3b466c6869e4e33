// Package config loads service configuration from an optional yaml file with
// environment overrides. Defaults are applied in code so an empty environment
// still boots a usable instance.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env      string         `yaml:"env"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Profile  ProfileConfig  `yaml:"profile"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

// PipelineConfig controls the data-import consumer loop.
type PipelineConfig struct {
	ConsumerGroup string        `yaml:"consumer_group"`
	InboundTopic  string        `yaml:"inbound_topic"`
	OutboundTopic string        `yaml:"outbound_topic"`
	LoadLimit     int           `yaml:"load_limit"`
	GlobalLimit   int           `yaml:"global_limit"`
	DrainTimeout  time.Duration `yaml:"drain_timeout"`
	RelayInterval time.Duration `yaml:"relay_interval"`
}

// ProfileConfig bounds calls to the profile snapshot service.
type ProfileConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

func Default() Config {
	return Config{
		Env: "dev",
		Database: DatabaseConfig{
			DSN: "postgres://localhost:5432/srs?sslmode=disable",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Pipeline: PipelineConfig{
			ConsumerGroup: "srs.data-import",
			InboundTopic:  "srs.data-import.incoming",
			OutboundTopic: "srs.data-import.outgoing",
			LoadLimit:     5,
			GlobalLimit:   100,
			DrainTimeout:  30 * time.Second,
			RelayInterval: time.Second,
		},
		Profile: ProfileConfig{
			RequestTimeout: 5 * time.Second,
			CacheTTL:       2 * time.Minute,
		},
	}
}

// Load reads CONFIG_PATH (when set) and then applies environment overrides on
// top of the defaults.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)
	return cfg.withDefaults(), nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PIPELINE_CONSUMER_GROUP"); v != "" {
		cfg.Pipeline.ConsumerGroup = v
	}
	if v, err := strconv.Atoi(os.Getenv("PIPELINE_LOAD_LIMIT")); err == nil && v > 0 {
		cfg.Pipeline.LoadLimit = v
	}
	if v, err := strconv.Atoi(os.Getenv("PIPELINE_GLOBAL_LIMIT")); err == nil && v > 0 {
		cfg.Pipeline.GlobalLimit = v
	}
}

func (c Config) withDefaults() Config {
	defaults := Default()
	if c.Pipeline.LoadLimit <= 0 {
		c.Pipeline.LoadLimit = defaults.Pipeline.LoadLimit
	}
	if c.Pipeline.GlobalLimit <= 0 {
		c.Pipeline.GlobalLimit = defaults.Pipeline.GlobalLimit
	}
	if c.Pipeline.DrainTimeout <= 0 {
		c.Pipeline.DrainTimeout = defaults.Pipeline.DrainTimeout
	}
	if c.Pipeline.ConsumerGroup == "" {
		c.Pipeline.ConsumerGroup = defaults.Pipeline.ConsumerGroup
	}
	if c.Pipeline.InboundTopic == "" {
		c.Pipeline.InboundTopic = defaults.Pipeline.InboundTopic
	}
	if c.Pipeline.OutboundTopic == "" {
		c.Pipeline.OutboundTopic = defaults.Pipeline.OutboundTopic
	}
	if c.Pipeline.RelayInterval <= 0 {
		c.Pipeline.RelayInterval = defaults.Pipeline.RelayInterval
	}
	if c.Profile.RequestTimeout <= 0 {
		c.Profile.RequestTimeout = defaults.Profile.RequestTimeout
	}
	if c.Profile.CacheTTL <= 0 {
		c.Profile.CacheTTL = defaults.Profile.CacheTTL
	}
	return c
}

func (c Config) IsProduction() bool { return c.Env == "production" }
