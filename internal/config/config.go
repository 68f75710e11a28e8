package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Factors   FactorsConfig   `yaml:"factors" mapstructure:"factors"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings. The clarifier runs on the
// cheap model; extraction uses the default model.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	Model         string `yaml:"model" mapstructure:"model"`
	ClarifyModel  string `yaml:"clarify_model" mapstructure:"clarify_model"`
	RatePerSecond int    `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// JinaConfig holds Jina AI Reader and Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
	RatePerSecond int    `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// SearchConfig configures the source search stage.
type SearchConfig struct {
	MaxSources int `yaml:"max_sources" mapstructure:"max_sources"`
}

// ExtractConfig configures the extraction stage and the feedback loop.
type ExtractConfig struct {
	MaxConcurrent    int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxRounds        int `yaml:"max_rounds" mapstructure:"max_rounds"`
	RoundTimeoutSecs int `yaml:"round_timeout_secs" mapstructure:"round_timeout_secs"`
}

// RoundTimeout returns the configured round deadline as a duration.
func (c ExtractConfig) RoundTimeout() time.Duration {
	return time.Duration(c.RoundTimeoutSecs) * time.Second
}

// FactorsConfig points at an optional YAML file of category → factor
// templates that overrides the built-in defaults.
type FactorsConfig struct {
	TemplatesPath string `yaml:"templates_path" mapstructure:"templates_path"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROCURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	// Keys default empty so AutomaticEnv can bind them.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("jina.key", "")
	v.SetDefault("factors.templates_path", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.clarify_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.rate_per_second", 10)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.rate_per_second", 5)
	v.SetDefault("search.max_sources", 8)
	v.SetDefault("extract.max_concurrent", 25)
	v.SetDefault("extract.max_rounds", 2)
	v.SetDefault("extract.round_timeout_secs", 300)

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

// Validate checks that the settings a mode needs are present. Modes are
// "serve" for the HTTP API and "run" for a one-shot analysis.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func() {
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Jina.Key == "" {
			problems = append(problems, "jina.key is required")
		}
		if c.Extract.MaxConcurrent < 1 || c.Extract.MaxConcurrent > 50 {
			problems = append(problems, "extract.max_concurrent must be between 1 and 50")
		}
		if c.Extract.MaxRounds < 0 {
			problems = append(problems, "extract.max_rounds must be >= 0")
		}
		if c.Search.MaxSources < 1 {
			problems = append(problems, "search.max_sources must be >= 1")
		}
	}

	switch mode {
	case "serve":
		check()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "run":
		check()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
