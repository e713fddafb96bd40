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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Oracle    OracleConfig    `yaml:"oracle" mapstructure:"oracle"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ProvidersConfig holds per-provider connection settings.
type ProvidersConfig struct {
	SourcesFile    string         `yaml:"sources_file" mapstructure:"sources_file"`
	Nager          ProviderConfig `yaml:"nager" mapstructure:"nager"`
	OpenHolidays   ProviderConfig `yaml:"openholidays" mapstructure:"openholidays"`
	Ninjas         ProviderConfig `yaml:"ninjas" mapstructure:"ninjas"`
	TimeoutSecs    int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec float64        `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// ProviderConfig holds one upstream holiday API's settings.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	Enabled *bool  `yaml:"enabled" mapstructure:"enabled"`
}

// On reports whether the provider is enabled; unset means enabled.
func (p ProviderConfig) On() bool {
	return p.Enabled == nil || *p.Enabled
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// OracleConfig configures the merge and verification oracle calls.
type OracleConfig struct {
	MaxTokens       int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	CallTimeoutSecs int     `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	RequestsPerSec  float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	BreakerFailures int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerCooldown int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// CallTimeout returns the oracle call timeout as a duration.
func (o OracleConfig) CallTimeout() time.Duration {
	return time.Duration(o.CallTimeoutSecs) * time.Second
}

// PipelineConfig configures reconciliation runs.
type PipelineConfig struct {
	MaxConcurrentCountries int     `yaml:"max_concurrent_countries" mapstructure:"max_concurrent_countries"`
	MergeThreshold         float64 `yaml:"merge_threshold" mapstructure:"merge_threshold"`
	DistinctThreshold      float64 `yaml:"distinct_threshold" mapstructure:"distinct_threshold"`
}

// ServerConfig configures the query API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("HOLIDAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "holidays.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("providers.nager.base_url", "https://date.nager.at")
	v.SetDefault("providers.openholidays.base_url", "https://openholidaysapi.org")
	v.SetDefault("providers.ninjas.base_url", "https://api.api-ninjas.com")
	v.SetDefault("providers.timeout_secs", 30)
	v.SetDefault("providers.requests_per_sec", 4)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("oracle.max_tokens", 512)
	v.SetDefault("oracle.call_timeout_secs", 60)
	v.SetDefault("oracle.requests_per_sec", 2)
	v.SetDefault("oracle.breaker_failures", 5)
	v.SetDefault("oracle.breaker_cooldown_secs", 30)
	v.SetDefault("pipeline.max_concurrent_countries", 4)
	v.SetDefault("pipeline.merge_threshold", 0.75)
	v.SetDefault("pipeline.distinct_threshold", 0.05)

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
