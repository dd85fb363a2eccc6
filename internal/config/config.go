// Package config loads the CLI's yaml configuration.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"

	SQLite struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sqlite"`

	Postgres struct {
		DSN      string `mapstructure:"dsn"`
		Database string `mapstructure:"database"`
		Schema   string `mapstructure:"schema"`
	} `mapstructure:"postgres"`

	AutoConnect     bool   `mapstructure:"auto_connect"`
	AutoTransaction bool   `mapstructure:"auto_transaction"`
	HistoryPath     string `mapstructure:"history_path"`
}

// Default is the configuration used when no file is given: an in-memory
// SQLite database with auto-connect on.
func Default() *Config {
	cfg := &Config{Driver: "sqlite", AutoConnect: true}
	cfg.SQLite.Path = ":memory:"
	return cfg
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("driver", "sqlite")
	v.SetDefault("sqlite.path", ":memory:")
	v.SetDefault("auto_connect", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	switch cfg.Driver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	return &cfg, nil
}
