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
	Store     Store     `yaml:"store" mapstructure:"store"`
	Data      Data      `yaml:"data" mapstructure:"data"`
	Fetch     Fetch     `yaml:"fetch" mapstructure:"fetch"`
	Normalize Normalize `yaml:"normalize" mapstructure:"normalize"`
	Dedup     Dedup     `yaml:"dedup" mapstructure:"dedup"`
	Log       Log       `yaml:"log" mapstructure:"log"`
}

// Store configures the run persistence backend.
type Store struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// Data configures the on-disk layout the pipeline stages share.
type Data struct {
	Root        string `yaml:"root" mapstructure:"root"`
	SourcesFile string `yaml:"sources_file" mapstructure:"sources_file"`
}

// Fetch configures archive downloads.
type Fetch struct {
	Workers        int           `yaml:"workers" mapstructure:"workers"`
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RatePerHost    float64       `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	UserAgent      string        `yaml:"user_agent" mapstructure:"user_agent"`
	ProgressBar    bool          `yaml:"progress_bar" mapstructure:"progress_bar"`
}

// Normalize configures canonical-layout materialization.
type Normalize struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// Dedup configures fingerprinting and near-duplicate grouping.
type Dedup struct {
	Workers int `yaml:"workers" mapstructure:"workers"`

	// HammingThreshold is the maximum dHash distance at which two images
	// are considered near duplicates.
	HammingThreshold int `yaml:"hamming_threshold" mapstructure:"hamming_threshold"`

	// FileTimeout bounds fingerprinting of a single file; files exceeding
	// it are excluded as corrupt rather than blocking the scan.
	FileTimeout time.Duration `yaml:"file_timeout" mapstructure:"file_timeout"`
}

// Log configures logging.
type Log struct {
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
	v.SetEnvPrefix("PLANTSET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "plantset.db")
	v.SetDefault("data.root", "data")
	v.SetDefault("data.sources_file", "sources.yaml")
	v.SetDefault("fetch.workers", 3)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.initial_backoff", "500ms")
	v.SetDefault("fetch.timeout", "10m")
	v.SetDefault("fetch.rate_per_host", 5)
	v.SetDefault("fetch.user_agent", "plantset-cli/1.0")
	v.SetDefault("fetch.progress_bar", true)
	v.SetDefault("normalize.workers", 4)
	v.SetDefault("dedup.workers", 4)
	v.SetDefault("dedup.hamming_threshold", 8)
	v.SetDefault("dedup.file_timeout", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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
func InitLogger(cfg Log) error {
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
