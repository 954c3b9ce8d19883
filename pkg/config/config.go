// Package config loads service configuration from layered sources:
// built-in defaults, an optional YAML file, and BOOKBLEND_ environment
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/bookblend-dev/bookblend/pkg/blend"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "BOOKBLEND_CONFIG"

// defaultConfigPaths lists where config files are searched, in order.
var defaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/bookblend/config.yaml",
}

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Cache   CacheConfig   `koanf:"cache"`
	Keys    KeysConfig    `koanf:"keys"`
	Blend   BlendConfig   `koanf:"blend"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// CacheConfig controls the on-disk HTTP cache.
type CacheConfig struct {
	Dir string        `koanf:"dir"`
	TTL time.Duration `koanf:"ttl"`
}

// KeysConfig holds API credentials. All fields are optional; features
// that need a missing key degrade rather than fail.
type KeysConfig struct {
	// Service is the shared secret clients must send in X-API-Key.
	// Empty disables request authentication.
	Service string `koanf:"service"`
	// OpenAI enables LLM genre insights.
	OpenAI string `koanf:"openai"`
	// Hardcover enables per-book genre tag lookups.
	Hardcover string `koanf:"hardcover"`
}

// BlendConfig overrides the scorer's empirical constants: the sparse-data
// thresholds and the delta normalization caps.
type BlendConfig struct {
	LowTotal      int     `koanf:"low_total"`
	LowRead       int     `koanf:"low_read"`
	ModerateTotal int     `koanf:"moderate_total"`
	ModerateRead  int     `koanf:"moderate_read"`
	RatingScale   float64 `koanf:"rating_scale"`
	PageCap       float64 `koanf:"page_cap"`
	YearCap       float64 `koanf:"year_cap"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

var defaultTuning = blend.DefaultTuning()

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Dir: "", // empty means ~/.cache/bookblend
			TTL: 14 * 24 * time.Hour,
		},
		Blend: BlendConfig{
			LowTotal:      defaultTuning.LowTotal,
			LowRead:       defaultTuning.LowRead,
			ModerateTotal: defaultTuning.ModerateTotal,
			ModerateRead:  defaultTuning.ModerateRead,
			RatingScale:   defaultTuning.RatingScale,
			PageCap:       defaultTuning.PageCap,
			YearCap:       defaultTuning.YearCap,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional config file,
// and BOOKBLEND_ environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("BOOKBLEND_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Blend.RatingScale <= 0 || c.Blend.PageCap <= 0 || c.Blend.YearCap <= 0 {
		return errors.New("blend normalization caps must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}

// Addr returns the host:port the server should listen on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Tuning converts the blend section into the scorer's tuning values.
func (c *Config) Tuning() blend.Tuning {
	return blend.Tuning{
		LowTotal:      c.Blend.LowTotal,
		LowRead:       c.Blend.LowRead,
		ModerateTotal: c.Blend.ModerateTotal,
		ModerateRead:  c.Blend.ModerateRead,
		RatingScale:   c.Blend.RatingScale,
		PageCap:       c.Blend.PageCap,
		YearCap:       c.Blend.YearCap,
	}
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps BOOKBLEND_SERVER_PORT to server.port and so on.
// Section names never contain underscores, so the first underscore
// splits section from field.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "BOOKBLEND_"))
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return ""
	}
	switch section {
	case "server", "cache", "keys", "blend", "logging":
		return section + "." + field
	}
	return ""
}
