package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type ServerConfig struct {
	Address      string     `yaml:"address"`
	IPBlockCIDRs []string   `yaml:"ipBlockCIDRs"`
	CORS         CORSConfig `yaml:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type UpstreamConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	APIKey     string        `yaml:"apiKey"`
	OutputSize int           `yaml:"outputSize"`
	Timeout    time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	MaxEntries    int           `yaml:"maxEntries"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
	// Coalesce shares one upstream call between concurrent misses on the same key.
	Coalesce *bool `yaml:"coalesce,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"serviceName"`
	// SampleRate is the fraction of root traces kept; unset means 1.
	SampleRate *float64 `yaml:"sampleRate,omitempty"`
}

const (
	DefaultAddress    = ":4000"
	DefaultBaseURL    = "https://api.twelvedata.com"
	DefaultOutputSize = 200
	DefaultTimeout    = 10 * time.Second
	DefaultTTL        = 25 * time.Second
	DefaultMaxEntries = 1024
)

// Load reads the YAML file at path, fills defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides file values with the process environment.
func (cfg *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("TWELVED_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := getenv("PORT"); v != "" {
		cfg.Server.Address = ":" + v
	}
	if v := getenv("CANDLEGATE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := getenv("CANDLEGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Address == "" {
		cfg.Server.Address = DefaultAddress
	}
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = []string{"*"}
	}

	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultBaseURL
	}
	if cfg.Upstream.OutputSize <= 0 {
		cfg.Upstream.OutputSize = DefaultOutputSize
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = DefaultTimeout
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultTTL
	}
	if cfg.Cache.MaxEntries <= 0 {
		cfg.Cache.MaxEntries = DefaultMaxEntries
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = "localhost:4318"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "candlegate"
	}
}

func (cfg *Config) Validate() error {
	if cfg.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}
	if cfg.Cache.SweepInterval < 0 {
		return errors.New("cache.sweepInterval must not be negative")
	}
	if r := cfg.Tracing.SampleRate; r != nil && (*r < 0 || *r > 1) {
		return fmt.Errorf("tracing.sampleRate %v must be within [0, 1]", *r)
	}
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return fmt.Errorf("parse upstream.baseURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream.baseURL %q: scheme must be http or https", cfg.Upstream.BaseURL)
	}
	return nil
}

func (cfg *Config) CoalesceEnabled() bool {
	if cfg.Cache.Coalesce != nil {
		return *cfg.Cache.Coalesce
	}
	return true
}

func (cfg *Config) TraceSampleRate() float64 {
	if cfg.Tracing.SampleRate != nil {
		return *cfg.Tracing.SampleRate
	}
	return 1.0
}
