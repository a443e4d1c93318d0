package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/harborview-partners/diligence-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Market     MarketConfig     `yaml:"market" mapstructure:"market"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge" mapstructure:"knowledge"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
}

// StoreConfig configures the job store backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSAllowedOrigins  []string `yaml:"cors_allowed_origins" mapstructure:"cors_allowed_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ExtractionConfig holds document extraction service settings.
type ExtractionConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// MarketConfig holds market intelligence service settings.
type MarketConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// KnowledgeConfig holds knowledge base service settings.
type KnowledgeConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PipelineConfig configures analysis pipeline behavior.
type PipelineConfig struct {
	MaxFiles           int    `yaml:"max_files" mapstructure:"max_files"`
	MaxFileSizeMB      int64  `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb"`
	MaxDeckSizeMB      int64  `yaml:"max_deck_size_mb" mapstructure:"max_deck_size_mb"`
	ExtractWorkers     int    `yaml:"extract_workers" mapstructure:"extract_workers"`
	AnalysisDepth      string `yaml:"analysis_depth" mapstructure:"analysis_depth"`
	FailOnPersistError bool   `yaml:"fail_on_persist_error" mapstructure:"fail_on_persist_error"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DILIGENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "diligence.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("extraction.timeout_secs", 60)
	v.SetDefault("extraction.rate_limit", 10)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("market.timeout_secs", 30)
	v.SetDefault("knowledge.timeout_secs", 30)
	v.SetDefault("pipeline.max_files", 10)
	v.SetDefault("pipeline.max_file_size_mb", 10)
	v.SetDefault("pipeline.max_deck_size_mb", 30)
	v.SetDefault("pipeline.extract_workers", 4)
	v.SetDefault("pipeline.analysis_depth", "comprehensive")
	v.SetDefault("pipeline.fail_on_persist_error", false)

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
