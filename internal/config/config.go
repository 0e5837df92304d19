package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/placefeed/curator/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Textgen  TextgenConfig  `yaml:"textgen" mapstructure:"textgen"`
	Places   PlacesConfig   `yaml:"places" mapstructure:"places"`
	Wiki     WikiConfig     `yaml:"wiki" mapstructure:"wiki"`
	Census   CensusConfig   `yaml:"census" mapstructure:"census"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// TextgenConfig configures the text generation provider.
type TextgenConfig struct {
	Provider          string          `yaml:"provider" mapstructure:"provider"`
	RequestsPerMinute int             `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	TimeoutSecs       int             `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Anthropic         AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI            OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds settings for any OpenAI-compatible chat completions API.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// PlacesConfig holds the place lookup API settings.
type PlacesConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// WikiConfig holds the encyclopedia summary API settings.
type WikiConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CensusConfig holds the population data API settings.
type CensusConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PipelineConfig configures batch processing and the publish gate.
type PipelineConfig struct {
	BatchSize        int `yaml:"batch_size" mapstructure:"batch_size"`
	Workers          int `yaml:"workers" mapstructure:"workers"`
	PublishThreshold int `yaml:"publish_threshold" mapstructure:"publish_threshold"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// RetryConfig configures per-call retries against external services.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the configuration is usable for the given mode.
// Modes: "run" (full pipeline), "maintenance" (store-only commands),
// "serve" (HTTP API).
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "run":
		checkStore()
		switch c.Textgen.Provider {
		case "anthropic":
			if c.Textgen.Anthropic.Key == "" {
				problems = append(problems, "textgen.anthropic.key is required")
			}
		case "openai":
			if c.Textgen.OpenAI.Key == "" {
				problems = append(problems, "textgen.openai.key is required")
			}
		default:
			problems = append(problems, "textgen.provider must be anthropic or openai")
		}
		if c.Pipeline.BatchSize < 1 {
			problems = append(problems, "pipeline.batch_size must be >= 1")
		}
		if c.Pipeline.Workers < 1 || c.Pipeline.Workers > 32 {
			problems = append(problems, "pipeline.workers must be between 1 and 32")
		}
		if c.Pipeline.PublishThreshold < 0 || c.Pipeline.PublishThreshold > 100 {
			problems = append(problems, "pipeline.publish_threshold must be between 0 and 100")
		}
		if c.Pipeline.MaxAttempts < 1 {
			problems = append(problems, "pipeline.max_attempts must be >= 1")
		}
	case "maintenance":
		checkStore()
	case "serve":
		checkStore()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "curator.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("textgen.provider", "anthropic")
	v.SetDefault("textgen.requests_per_minute", 30)
	v.SetDefault("textgen.timeout_secs", 60)
	v.SetDefault("textgen.anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("textgen.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("textgen.openai.model", "gpt-4o-mini")
	v.SetDefault("places.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("places.timeout_secs", 15)
	v.SetDefault("wiki.base_url", "https://en.wikipedia.org/api/rest_v1")
	v.SetDefault("wiki.timeout_secs", 15)
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.timeout_secs", 15)
	v.SetDefault("pipeline.batch_size", 50)
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.publish_threshold", 70)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("retry.failure_threshold", 5)
	v.SetDefault("retry.reset_timeout_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
