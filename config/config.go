// Package config loads container configuration from YAML with environment
// overrides read from the process and from optional .env files.
//
//	log:
//	  level: debug
//	  format: console
//	cache:
//	  ttl: 30s
//	  capacity: 5000
//	bindings:
//	  - abstract: Greeter
//	    concrete: EnglishGreeter
//	    lifetime: singleton
//	values:
//	  greeting: hello
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/toutaio/toutago-nasc-builder/intercept"
)

// Environment variables that override file values.
const (
	EnvLogLevel  = "NASC_LOG_LEVEL"
	EnvLogFormat = "NASC_LOG_FORMAT"
	EnvCacheTTL  = "NASC_CACHE_TTL"
)

// Config is the typed configuration of a container.
type Config struct {
	Log      LogConfig         `yaml:"log"`
	Cache    CacheConfig       `yaml:"cache"`
	Bindings []Binding         `yaml:"bindings"`
	Values   map[string]string `yaml:"values"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// CacheConfig configures the caching interception handler.
type CacheConfig struct {
	TTL                time.Duration `yaml:"ttl"`
	Capacity           int           `yaml:"capacity"`
	Shards             int           `yaml:"shards"`
	EvictionPercentage int           `yaml:"evictionPercentage"`
}

// Binding maps an abstract type name to a concrete type name. Both names
// are looked up in the type table handed to the container.
type Binding struct {
	Abstract string   `yaml:"abstract"`
	Concrete string   `yaml:"concrete"`
	Name     string   `yaml:"name"`
	Lifetime string   `yaml:"lifetime"` // transient (default) | singleton | scoped
	Tags     []string `yaml:"tags"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cache := intercept.DefaultCacheConfig()
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Cache: CacheConfig{
			TTL:                cache.TTL,
			Capacity:           cache.Capacity,
			Shards:             cache.NumShards,
			EvictionPercentage: cache.EvictionPercentage,
		},
		Values: map[string]string{},
	}
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if cfg.Values == nil {
		cfg.Values = map[string]string{}
	}
	return cfg, nil
}

// Load reads the YAML file at path (skipped when empty), then applies
// overrides from envFiles and the process environment. The process
// environment wins over .env files, which are never exported to it.
// Missing .env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, errors.WithMessage(err, path)
		}
	}

	env := map[string]string{}
	for _, file := range envFiles {
		values, err := godotenv.Read(file)
		if err != nil {
			if os.IsNotExist(errors.Cause(err)) {
				continue
			}
			return nil, errors.Wrapf(err, "failed to read env file %s", file)
		}
		for k, v := range values {
			env[k] = v
		}
	}
	for _, k := range []string{EnvLogLevel, EnvLogFormat, EnvCacheTTL} {
		if v, ok := os.LookupEnv(k); ok && v != "" {
			env[k] = v
		}
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(env map[string]string) error {
	if v := env[EnvLogLevel]; v != "" {
		c.Log.Level = v
	}
	if v := env[EnvLogFormat]; v != "" {
		c.Log.Format = v
	}
	if v := env[EnvCacheTTL]; v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return &ConfigError{Field: EnvCacheTTL, Message: err.Error()}
		}
		c.Cache.TTL = ttl
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return &ConfigError{Field: "log.format", Message: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	if err := c.CacheConfig().Validate(); err != nil {
		return &ConfigError{Field: "cache", Message: err.Error()}
	}

	seen := map[string]bool{}
	for i, b := range c.Bindings {
		field := fmt.Sprintf("bindings[%d]", i)
		if b.Abstract == "" {
			return &ConfigError{Field: field, Message: "abstract type is required"}
		}
		if b.Concrete == "" {
			return &ConfigError{Field: field, Message: "concrete type is required"}
		}
		switch b.Lifetime {
		case "", "transient", "singleton", "scoped":
		default:
			return &ConfigError{Field: field, Message: fmt.Sprintf("unknown lifetime %q", b.Lifetime)}
		}
		id := b.Abstract + "#" + b.Name
		if seen[id] {
			return &ConfigError{Field: field, Message: fmt.Sprintf("duplicate binding for %s", id)}
		}
		seen[id] = true
	}
	return nil
}

// CacheConfig converts the cache section into a caching handler config.
func (c *Config) CacheConfig() intercept.CacheConfig {
	return intercept.CacheConfig{
		Capacity:           c.Cache.Capacity,
		NumShards:          c.Cache.Shards,
		TTL:                c.Cache.TTL,
		EvictionPercentage: c.Cache.EvictionPercentage,
	}
}

// ConfigError is returned when a configuration value is invalid.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}
