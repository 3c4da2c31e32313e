// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	HTTPAddr          string        `mapstructure:"HTTP_ADDR"`
	DBURL             string        `mapstructure:"DB_URL"`
	GithubToken       string        `mapstructure:"GITHUB_TOKEN"`
	CronSecret        string        `mapstructure:"CRON_SECRET"`
	SyncInterval      time.Duration `mapstructure:"SYNC_INTERVAL"`
	PRSearchMaxPages  int           `mapstructure:"PR_SEARCH_MAX_PAGES"`
	PRDetailBatchSize int           `mapstructure:"PR_DETAIL_BATCH_SIZE"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("SYNC_INTERVAL", "24h")
	viper.SetDefault("PR_SEARCH_MAX_PAGES", 10)
	viper.SetDefault("PR_DETAIL_BATCH_SIZE", 10)

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables. Each key is bound explicitly because
	// Unmarshal only sees env-backed keys that were bound or defaulted.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range []string{
		"LOG_LEVEL", "HTTP_ADDR", "DB_URL", "GITHUB_TOKEN", "CRON_SECRET",
		"SYNC_INTERVAL", "PR_SEARCH_MAX_PAGES", "PR_DETAIL_BATCH_SIZE",
	} {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.GithubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is a required configuration field")
	}
	if cfg.SyncInterval <= 0 {
		return nil, errors.New("SYNC_INTERVAL must be a positive duration")
	}
	if cfg.PRSearchMaxPages <= 0 || cfg.PRSearchMaxPages > 10 {
		return nil, errors.New("PR_SEARCH_MAX_PAGES must be between 1 and 10 (the search service caps results at 1000)")
	}
	if cfg.PRDetailBatchSize <= 0 {
		return nil, errors.New("PR_DETAIL_BATCH_SIZE must be positive")
	}

	return &cfg, nil
}
