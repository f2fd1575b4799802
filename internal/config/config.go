// Package config loads application configuration and installs the global
// logger.
package config

import (
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Generator GeneratorConfig `yaml:"generator" mapstructure:"generator"`
	Streams   StreamsConfig   `yaml:"streams" mapstructure:"streams"`
	Region    RegionConfig    `yaml:"region" mapstructure:"region"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// GeneratorConfig configures the aggregation passes.
type GeneratorConfig struct {
	// Threads is the worker pool size; 1 forces deterministic
	// single-threaded processing.
	Threads int `yaml:"threads" mapstructure:"threads"`
}

// StreamsConfig names the feature stream files of one generation run.
type StreamsConfig struct {
	Streets    string `yaml:"streets" mapstructure:"streets"`
	GeoObjects string `yaml:"geo_objects" mapstructure:"geo_objects"`
	StreetsKV  string `yaml:"streets_kv" mapstructure:"streets_kv"`
}

// RegionConfig selects and configures the region-ownership backend.
type RegionConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"` // "sqlite" or "postgis"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
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
	v.SetEnvPrefix("STREETGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("generator.threads", runtime.NumCPU())
	v.SetDefault("streams.streets", "streets.tmp.jsonl")
	v.SetDefault("streams.geo_objects", "geo_objects.tmp.jsonl")
	v.SetDefault("streams.streets_kv", "streets.jsonl")
	v.SetDefault("region.backend", "sqlite")
	v.SetDefault("region.catalog_path", "regions.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
