package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is the application version, injected at build time via ldflags:
//
//	go build -ldflags "-X 'github.com/pkgfetch/pkgfetch/internal/config.Version=1.2.0'"
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Download DownloadConfig `mapstructure:"download"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds the settings database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// CatalogConfig holds software-update catalog configuration.
type CatalogConfig struct {
	SeedProgram    string        `mapstructure:"seed_program"`
	OSFilter       string        `mapstructure:"os_filter"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RefreshCron    string        `mapstructure:"refresh_cron"` // empty disables scheduled refresh
}

// DownloadConfig holds download pool configuration.
type DownloadConfig struct {
	Directory       string        `mapstructure:"directory"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	RetryLimit      int           `mapstructure:"retry_limit"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"` // 0 disables the total-transfer limit
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8725,
		},
		Database: DatabaseConfig{
			Path: "./data/pkgfetch.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Catalog: CatalogConfig{
			SeedProgram:    "none",
			OSFilter:       "all",
			RequestTimeout: 30 * time.Second,
		},
		Download: DownloadConfig{
			Directory:      "",
			MaxConcurrent:  3,
			RetryLimit:     100,
			RetryDelay:     5 * time.Second,
			RequestTimeout: 30 * time.Second,
		},
	}
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.pkgfetch")
	}

	v.SetEnvPrefix("PKGFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", "")

	v.SetDefault("catalog.seed_program", d.Catalog.SeedProgram)
	v.SetDefault("catalog.os_filter", d.Catalog.OSFilter)
	v.SetDefault("catalog.request_timeout", d.Catalog.RequestTimeout)
	v.SetDefault("catalog.refresh_cron", "")

	v.SetDefault("download.directory", d.Download.Directory)
	v.SetDefault("download.max_concurrent", d.Download.MaxConcurrent)
	v.SetDefault("download.retry_limit", d.Download.RetryLimit)
	v.SetDefault("download.retry_delay", d.Download.RetryDelay)
	v.SetDefault("download.request_timeout", d.Download.RequestTimeout)
	v.SetDefault("download.transfer_timeout", time.Duration(0))
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
