// Package config loads convo settings from a config file, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/boat-builder/convo"
	"github.com/boat-builder/convo/llm"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned by Load when no API key is configured.
var ErrMissingAPIKey = llm.ErrMissingAPIKey

// Config holds all application configuration
type Config struct {
	LLM     llm.LLMConfig     `mapstructure:"llm"`
	Retry   convo.RetryPolicy `mapstructure:"retry"`
	Session SessionConfig     `mapstructure:"session"`
	Storage StorageConfig     `mapstructure:"storage"`
	Log     LogConfig         `mapstructure:"log"`
	Metrics MetricsConfig     `mapstructure:"metrics"`
}

// SessionConfig holds the defaults a new conversation starts from.
type SessionConfig struct {
	Model           string  `mapstructure:"model"`
	CompletionModel string  `mapstructure:"completion_model"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int64   `mapstructure:"max_tokens"`
	Context         string  `mapstructure:"context"`
	Goal            string  `mapstructure:"goal"`
}

// StorageConfig selects the transcript archive. An empty driver disables it.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // "postgres" or "sqlite"
	DSN    string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from configPath (optional), a .env file in the
// working directory (optional) and CONVO_* environment variables.
// OPENAI_API_KEY and OPENAI_BASE_URL are honoured as well.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded, falling back to environment variables")
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("convo")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CONVO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", "CONVO_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.base_url", "CONVO_LLM_BASE_URL", "OPENAI_BASE_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.organization", "")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.requests_per_second", 0)
	v.SetDefault("llm.burst", 1)
	v.SetDefault("llm.breaker.failure_threshold", 5)
	v.SetDefault("llm.breaker.open_timeout", "60s")
	v.SetDefault("llm.breaker.half_open_requests", 1)

	v.SetDefault("retry.max_attempts", convo.DefaultMaxAttempts)
	v.SetDefault("retry.default_delay", convo.DefaultRetryDelay.String())
	v.SetDefault("retry.step", "0s")

	v.SetDefault("session.model", "gpt-4o-mini")
	v.SetDefault("session.completion_model", "gpt-3.5-turbo-instruct")
	v.SetDefault("session.temperature", 0.7)
	v.SetDefault("session.max_tokens", 0)
	v.SetDefault("session.context", "You are a helpful assistant.")
	v.SetDefault("session.goal", "")

	v.SetDefault("storage.driver", "")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("metrics.addr", "")
}

// Validate fails fast on settings a session cannot run without.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.DefaultDelay < 0 || c.Retry.Step < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm.timeout must not be negative, got %s", c.LLM.Timeout)
	}
	switch c.Storage.Driver {
	case "", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver != "" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
	}
	return nil
}

// Options returns the per-call options configured for sessions.
func (c *Config) Options() llm.Options {
	opts := llm.Options{MaxTokens: c.Session.MaxTokens}
	temperature := c.Session.Temperature
	opts.Temperature = &temperature
	return opts
}
