package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/FranksOps/shopscout/internal/shopee"
	"github.com/FranksOps/shopscout/pkg/ratelimit"
	"github.com/FranksOps/shopscout/pkg/useragent"
)

// EnvPrefix is prepended to every environment override, e.g.
// SHOPSCOUT_RATELIMIT_DELAY=2s.
const EnvPrefix = "SHOPSCOUT"

// Config holds all configuration for the application.
type Config struct {
	Shopee    ShopeeConfig    `mapstructure:"shopee"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// ShopeeConfig holds the upstream API settings.
type ShopeeConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	UserAgent     string        `mapstructure:"user_agent"`
	UserAgents    []string      `mapstructure:"user_agents"`
	Referer       string        `mapstructure:"referer"`
	SearchTimeout time.Duration `mapstructure:"search_timeout"`
	DetailTimeout time.Duration `mapstructure:"detail_timeout"`
	RespectRobots bool          `mapstructure:"respect_robots"`
}

// RateLimitConfig controls the wait before each shop-detail request.
type RateLimitConfig struct {
	Kind   string        `mapstructure:"kind"` // "fixed", "token" or "none"
	Delay  time.Duration `mapstructure:"delay"`
	Jitter float64       `mapstructure:"jitter"`
	RPS    float64       `mapstructure:"rps"`
	Burst  int           `mapstructure:"burst"`
}

type PipelineConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// StorageConfig selects where run history is kept.
type StorageConfig struct {
	Type string `mapstructure:"type"` // "none", "csv", "json", "sqlite" or "postgres"
	DSN  string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from defaults, an optional YAML file, SHOPSCOUT_*
// environment variables and any bound command-line flags, in increasing order
// of precedence. An empty path searches ./shopscout.yaml and
// $HOME/.config/shopscout/shopscout.yaml; a missing file is not an error.
func Load(path string, flags map[string]*pflag.Flag) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("shopscout")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/shopscout")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("config: bind flag %q: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("shopee.base_url", shopee.DefaultBaseURL)
	v.SetDefault("shopee.user_agent", useragent.Default)
	v.SetDefault("shopee.user_agents", []string{})
	v.SetDefault("shopee.referer", shopee.DefaultReferer)
	v.SetDefault("shopee.search_timeout", shopee.DefaultSearchTimeout)
	v.SetDefault("shopee.detail_timeout", shopee.DefaultDetailTimeout)
	v.SetDefault("shopee.respect_robots", false)

	v.SetDefault("ratelimit.kind", "fixed")
	v.SetDefault("ratelimit.delay", time.Second)
	v.SetDefault("ratelimit.jitter", 0.0)
	v.SetDefault("ratelimit.rps", 1.0)
	v.SetDefault("ratelimit.burst", 1)

	v.SetDefault("pipeline.concurrency", 1)

	v.SetDefault("storage.type", "none")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("metrics.port", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Shopee.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("shopee.base_url must be an absolute http(s) URL, got %q", c.Shopee.BaseURL)
	}
	if c.Shopee.SearchTimeout <= 0 || c.Shopee.DetailTimeout <= 0 {
		return errors.New("shopee timeouts must be positive")
	}

	switch c.RateLimit.Kind {
	case "fixed":
		if c.RateLimit.Delay < 0 {
			return errors.New("ratelimit.delay must not be negative")
		}
		if c.RateLimit.Jitter < 0 || c.RateLimit.Jitter > 1 {
			return fmt.Errorf("ratelimit.jitter must be within [0, 1], got %v", c.RateLimit.Jitter)
		}
	case "token":
		if c.RateLimit.RPS <= 0 {
			return errors.New("ratelimit.rps must be positive")
		}
		if c.RateLimit.Burst < 1 {
			return errors.New("ratelimit.burst must be at least 1")
		}
	case "none":
	default:
		return fmt.Errorf("ratelimit.kind must be 'fixed', 'token' or 'none', got: %s", c.RateLimit.Kind)
	}

	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline.concurrency must be at least 1, got %d", c.Pipeline.Concurrency)
	}

	switch c.Storage.Type {
	case "none":
	case "csv", "json", "sqlite", "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required when storage.type is '%s'", c.Storage.Type)
		}
	default:
		return fmt.Errorf("storage.type must be one of none, csv, json, sqlite, postgres, got: %s", c.Storage.Type)
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json', got: %s", c.Log.Format)
	}

	return nil
}

// ClientConfig maps the Shopee section onto the API client's options.
func (s ShopeeConfig) ClientConfig() shopee.Config {
	return shopee.Config{
		BaseURL:       s.BaseURL,
		Referer:       s.Referer,
		UserAgent:     s.UserAgent,
		UserAgents:    s.UserAgents,
		SearchTimeout: s.SearchTimeout,
		DetailTimeout: s.DetailTimeout,
		RespectRobots: s.RespectRobots,
	}
}

// Waiter builds the limiter the pipeline waits on before each detail call.
func (r RateLimitConfig) Waiter() ratelimit.Waiter {
	switch r.Kind {
	case "token":
		return ratelimit.NewTokenBucket(r.RPS, r.Burst)
	case "none":
		return ratelimit.Nop{}
	default:
		return ratelimit.NewLimiter(r.Delay, r.Jitter)
	}
}

// Logger builds a slog logger writing to w.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(l.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got: %s", s)
	}
	return level, nil
}
