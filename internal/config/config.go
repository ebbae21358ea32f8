// Package config loads the YAML configuration that drives an Engine:
// tier TTLs, the circuit breaker thresholds, the store backend, and the
// warm-up pair list, following the same Load*Config(path) pattern used
// throughout the rest of this codebase.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/pricecache/internal/circuit"
	"github.com/sawpanic/pricecache/internal/tier"
)

// ServerConfig holds the HTTP listener's configuration.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StoreConfig selects and configures the Quote Store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "memory" or "redis"
	Redis   struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
}

// TierOverride lets an operator override one tier's TTL/refresh cadence
// without recompiling the default policy.
type TierOverride struct {
	Label             string        `yaml:"label"`
	TTLSeconds        int           `yaml:"ttl_seconds"`
	RefreshPeriodSecs int           `yaml:"refresh_period_seconds"`
}

// BreakerConfig mirrors circuit.Config in YAML-friendly units.
type BreakerConfig struct {
	FailureThreshold      int `yaml:"failure_threshold"`
	SuccessThreshold      int `yaml:"success_threshold"`
	TimeoutSeconds        int `yaml:"timeout_seconds"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// WarmupPair is one entry of the preconfigured hot-pair list.
type WarmupPair struct {
	Chain    string `yaml:"chain"`
	TokenIn  string `yaml:"token_in"`
	TokenOut string `yaml:"token_out"`
	Tier     string `yaml:"tier"`
}

// Config is the root configuration document.
type Config struct {
	Server        ServerConfig   `yaml:"server"`
	Store         StoreConfig    `yaml:"store"`
	UpstreamURL   string         `yaml:"upstream_url"`
	Workers       int            `yaml:"workers"`
	MaxStaleSecs  int            `yaml:"max_stale_seconds"`
	TierOverrides []TierOverride `yaml:"tier_overrides"`
	Breaker       BreakerConfig  `yaml:"breaker"`
	Warmup        []WarmupPair   `yaml:"warmup"`
}

// Default returns a Config with production-sane defaults, used when no
// file is supplied or to fill gaps left by a partial file.
func Default() Config {
	cfg := Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Store:       StoreConfig{Backend: "memory"},
		UpstreamURL: "http://localhost:9090",
		Workers:     10,
		MaxStaleSecs: 3600,
		Breaker: BreakerConfig{
			FailureThreshold:      5,
			SuccessThreshold:      1,
			TimeoutSeconds:        60,
			RequestTimeoutSeconds: 30,
		},
	}
	return cfg
}

// Load reads and parses a YAML config file at path, starting from
// Default() so a partial file only overrides the fields it sets.
func Load(path string) (*Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded document for internally inconsistent
// values before the engine is built from it.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Store.Backend != "memory" && c.Store.Backend != "redis" {
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "redis" && c.Store.Redis.Addr == "" {
		return fmt.Errorf("store.redis.addr is required for the redis backend")
	}
	for _, o := range c.TierOverrides {
		if _, ok := tierLabels[o.Label]; !ok {
			return fmt.Errorf("unknown tier label %q in tier_overrides", o.Label)
		}
	}
	return nil
}

var tierLabels = map[string]tier.Label{
	string(tier.T1): tier.T1,
	string(tier.T2): tier.T2,
	string(tier.T3): tier.T3,
	string(tier.T4): tier.T4,
}

// Policy builds a tier.Policy from the defaults, applying any overrides
// and the configured global max-stale floor.
func (c *Config) Policy() tier.Policy {
	policy := tier.DefaultPolicy()
	if c.MaxStaleSecs > 0 {
		policy.MaxStaleAge = time.Duration(c.MaxStaleSecs) * time.Second
	}
	for _, o := range c.TierOverrides {
		label := tierLabels[o.Label]
		cfg := policy.Configs[label]
		if o.TTLSeconds > 0 {
			cfg.TTL = time.Duration(o.TTLSeconds) * time.Second
		}
		cfg.RefreshPeriod = time.Duration(o.RefreshPeriodSecs) * time.Second
		policy.Configs[label] = cfg
	}
	return policy
}

// BreakerSettings builds a circuit.Config from the document.
func (c *Config) BreakerSettings() circuit.Config {
	return circuit.Config{
		FailureThreshold: c.Breaker.FailureThreshold,
		SuccessThreshold: c.Breaker.SuccessThreshold,
		Timeout:          time.Duration(c.Breaker.TimeoutSeconds) * time.Second,
		RequestTimeout:   time.Duration(c.Breaker.RequestTimeoutSeconds) * time.Second,
	}
}

// WarmupTierFor maps a warm-up entry's YAML tier label to a tier.Label,
// falling back to tier.Default for an unknown or empty label. The caller
// builds the engine.WarmupPair values; engine never imports config.
func (c *Config) WarmupTierFor(label string) tier.Label {
	if l, ok := tierLabels[label]; ok {
		return l
	}
	return tier.Default
}
